package live

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dispatcher decodes inbound frames and routes them to registry resources.
type Dispatcher struct {
	registry  *Registry
	logger    Logger
	telemetry Telemetry
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		logger:    noopLogger{},
		telemetry: noopTelemetry{},
	}
}

// SetLogger sets the logger for protocol and resource errors.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// SetTelemetry sets the metrics sink. Nil disables telemetry.
func (d *Dispatcher) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	d.telemetry = t
}

// Registry returns the registry frames are resolved against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Handle processes one raw frame from s. It never returns an error: protocol
// problems are logged and resource failures become error frames. The
// session stays open in every case except a failed send.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("frame handler panic recovered",
				"session_id", s.ID(),
				"panic", r,
			)
		}
	}()

	f, err := DecodeFrame(raw)
	if err != nil {
		d.logger.Warn("dropping unparsable frame", "session_id", s.ID(), "error", err)
		return
	}

	op, ok := ParseOp(f.Handler)
	if !ok {
		d.logger.Warn("dropping frame",
			"session_id", s.ID(),
			"error", fmt.Errorf("%w: unknown handler %q", ErrInvalidMessage, f.Handler),
		)
		return
	}

	if op == OpInit {
		_ = s.sendSession() //nolint:errcheck // failure closes the session
		return
	}

	name := f.Resource
	if name == "" {
		name = s.DefaultResource()
	}

	started := time.Now()
	err = d.dispatch(ctx, s, op, name, f)
	d.telemetry.RequestHandled(name, op.String(), time.Since(started), err)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrSendFailure), errors.Is(err, ErrSessionClosed):
		return
	case errors.Is(err, ErrInvalidResource), errors.Is(err, ErrAccessDenied):
		d.logger.Debug("request rejected", "session_id", s.ID(), "resource", name, "op", op.String(), "error", err)
	default:
		d.logger.Error("request failed", "session_id", s.ID(), "resource", name, "op", op.String(), "error", err)
	}
	s.sendError(name, err)
}

func (d *Dispatcher) dispatch(ctx context.Context, s *Session, op Op, name string, f Frame) error {
	res, ok := d.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidResource, name)
	}

	switch op {
	case OpQuery:
		return res.Query(ctx, s, f)
	case OpAll:
		return res.All(ctx, s, f)
	case OpGet:
		return res.Get(ctx, s, f)
	case OpWatch:
		return res.Watch(ctx, s, f)
	case OpStop:
		return res.Stop(ctx, s, f)
	default:
		return fmt.Errorf("%w: %s not supported by %q", ErrInvalidResource, op, name)
	}
}
