package live

import (
	"context"
	"time"

	"github.com/nerrad567/inventory-gateway/internal/bus"
)

// Bus watch parameters.
const (
	ParamExchange   = "exchange"
	ParamRoutingKey = "routingKey"

	defaultRoutingKey = "#"
)

// BusResource exposes the pub/sub bus. Only watch and stop are supported;
// query, all and get log a warning and send nothing.
type BusResource struct {
	name            string
	defaultExchange string
	bus             Bus
	logger          Logger
}

// NewBusResource creates the bus pseudo-resource.
func NewBusResource(name, defaultExchange string, b Bus) *BusResource {
	return &BusResource{
		name:            name,
		defaultExchange: defaultExchange,
		bus:             b,
		logger:          noopLogger{},
	}
}

// SetLogger sets the logger for rejected operations.
func (r *BusResource) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Name returns the resource name.
func (r *BusResource) Name() string { return r.name }

// Query is not supported on the bus.
func (r *BusResource) Query(_ context.Context, s *Session, _ Frame) error {
	return r.reject(s, OpQuery)
}

// All is not supported on the bus.
func (r *BusResource) All(_ context.Context, s *Session, _ Frame) error {
	return r.reject(s, OpAll)
}

// Get is not supported on the bus.
func (r *BusResource) Get(_ context.Context, s *Session, _ Frame) error {
	return r.reject(s, OpGet)
}

func (r *BusResource) reject(s *Session, op Op) error {
	r.logger.Warn("operation not supported on bus resource",
		"session_id", s.ID(),
		"resource", r.name,
		"op", op.String(),
	)
	return nil
}

// Watch forwards every message matching the routing key pattern as an item
// frame whose id is the message's routing key.
func (r *BusResource) Watch(ctx context.Context, s *Session, f Frame) error {
	exchange, pattern := r.binding(f.Params)

	w := newWatcher(s, r.name)
	sub, err := r.bus.Subscribe(exchange, pattern, func(msg bus.Message) {
		w.push(event{
			key:       msg.RoutingKey,
			updatedAt: time.Now(),
			frame:     newItemFrame(r.name, msg.RoutingKey, msg.Data()),
		})
	})
	if err != nil {
		w.Dispose()
		return dataStoreError(err)
	}
	w.attach(sub)

	if !s.AddWatcher(r.watchKey(exchange, pattern), w) {
		return ErrSessionClosed
	}
	w.start(ctx)
	return nil
}

// Stop disposes every watcher on the same exchange and pattern.
func (r *BusResource) Stop(_ context.Context, s *Session, f Frame) error {
	exchange, pattern := r.binding(f.Params)
	if !s.RemoveWatchers(r.watchKey(exchange, pattern)) {
		r.logger.Debug("stop matched no watchers",
			"session_id", s.ID(),
			"resource", r.name,
			"exchange", exchange,
			"routing_key", pattern,
		)
	}
	return nil
}

func (r *BusResource) binding(params Params) (exchange, pattern string) {
	exchange, ok := params.String(ParamExchange)
	if !ok {
		exchange = r.defaultExchange
	}
	pattern, ok = params.String(ParamRoutingKey)
	if !ok {
		pattern = defaultRoutingKey
	}
	return exchange, pattern
}

func (r *BusResource) watchKey(exchange, pattern string) Params {
	return Params{"resource": r.name, ParamExchange: exchange, ParamRoutingKey: pattern}
}
