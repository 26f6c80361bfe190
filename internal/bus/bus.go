package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/inventory-gateway/internal/infrastructure/mqtt"
)

// Broker is the transport under the bus. *mqtt.Client and *LocalBroker satisfy it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Message is one event delivered to a subscriber.
type Message struct {
	Exchange   string
	RoutingKey string
	Payload    []byte
}

// Data decodes the payload as JSON, falling back to the raw string.
func (m Message) Data() any {
	var v any
	if err := json.Unmarshal(m.Payload, &v); err != nil {
		return string(m.Payload)
	}
	return v
}

// Bus fans broker messages out to local subscribers.
//
// All public methods are thread-safe.
type Bus struct {
	broker Broker
	topics mqtt.Topics
	qos    byte

	// brokerMu serialises broker subscribe/unsubscribe so a filter is never
	// subscribed twice or unsubscribed while a new subscriber joins.
	brokerMu sync.Mutex

	subsMu  sync.RWMutex
	filters map[string]map[uint64]*Subscription
	nextID  uint64

	pending sync.WaitGroup
	closed  atomic.Bool
	logger  Logger
}

// New creates a bus on broker with topics rooted at prefix.
func New(broker Broker, prefix string, qos byte) *Bus {
	return &Bus{
		broker:  broker,
		topics:  mqtt.NewTopics(prefix),
		qos:     qos,
		filters: make(map[string]map[uint64]*Subscription),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Subscription is one local subscriber. Dispose is idempotent and never blocks.
type Subscription struct {
	id       uint64
	filter   string
	exchange string
	pattern  string
	fn       func(Message)
	bus      *Bus
	once     sync.Once
	disposed atomic.Bool
}

// Exchange returns the subscribed exchange.
func (s *Subscription) Exchange() string { return s.exchange }

// Pattern returns the bound routing pattern.
func (s *Subscription) Pattern() string { return s.pattern }

// Dispose stops deliveries immediately and releases the broker filter in the background.
func (s *Subscription) Dispose() {
	s.once.Do(func() {
		s.disposed.Store(true)
		s.bus.pending.Add(1)
		go func() {
			defer s.bus.pending.Done()
			s.bus.release(s)
		}()
	})
}

// Subscribe binds fn to pattern on exchange.
func (b *Bus) Subscribe(exchange, pattern string, fn func(Message)) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	filter, err := b.topics.Filter(exchange, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExchange, err)
	}

	b.brokerMu.Lock()
	defer b.brokerMu.Unlock()

	b.subsMu.Lock()
	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		filter:   filter,
		exchange: exchange,
		pattern:  pattern,
		fn:       fn,
		bus:      b,
	}
	subs, active := b.filters[filter]
	if !active {
		subs = make(map[uint64]*Subscription)
		b.filters[filter] = subs
	}
	subs[sub.id] = sub
	b.subsMu.Unlock()

	if active {
		return sub, nil
	}

	if err := b.broker.Subscribe(filter, b.qos, b.dispatcher(filter)); err != nil {
		b.subsMu.Lock()
		delete(b.filters, filter)
		b.subsMu.Unlock()
		return nil, fmt.Errorf("subscribing %s: %w", filter, err)
	}
	b.logger.Debug("bus filter subscribed", "filter", filter)
	return sub, nil
}

// Publish JSON-encodes payload and sends it to exchange with routingKey.
// json.RawMessage and []byte payloads are sent as-is.
func (b *Bus) Publish(exchange, routingKey string, payload any) error {
	if b.closed.Load() {
		return ErrClosed
	}
	topic, err := b.topics.Event(exchange, routingKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExchange, err)
	}

	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
	}

	if err := b.broker.Publish(topic, data, b.qos, false); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// SubscriberCount returns the number of local subscribers on exchange and pattern.
func (b *Bus) SubscriberCount(exchange, pattern string) int {
	filter, err := b.topics.Filter(exchange, pattern)
	if err != nil {
		return 0
	}
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.filters[filter])
}

// FilterCount returns the number of broker filters currently held.
func (b *Bus) FilterCount() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.filters)
}

// Wait blocks until background releases started by Dispose have finished.
func (b *Bus) Wait() {
	b.pending.Wait()
}

// Close rejects new work and waits for pending releases.
func (b *Bus) Close() error {
	b.closed.Store(true)
	b.pending.Wait()
	return nil
}

func (b *Bus) release(s *Subscription) {
	b.brokerMu.Lock()
	defer b.brokerMu.Unlock()

	b.subsMu.Lock()
	subs := b.filters[s.filter]
	delete(subs, s.id)
	last := subs != nil && len(subs) == 0
	if last {
		delete(b.filters, s.filter)
	}
	b.subsMu.Unlock()

	if !last {
		return
	}
	if err := b.broker.Unsubscribe(s.filter); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		b.logger.Warn("bus unsubscribe failed", "filter", s.filter, "error", err)
		return
	}
	b.logger.Debug("bus filter released", "filter", s.filter)
}

// dispatcher returns the broker handler for one filter.
func (b *Bus) dispatcher(filter string) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		exchange, routingKey, ok := b.topics.Parse(topic)
		if !ok {
			return nil
		}
		msg := Message{Exchange: exchange, RoutingKey: routingKey, Payload: payload}

		b.subsMu.RLock()
		targets := make([]*Subscription, 0, len(b.filters[filter]))
		for _, s := range b.filters[filter] {
			targets = append(targets, s)
		}
		b.subsMu.RUnlock()

		for _, s := range targets {
			if s.disposed.Load() {
				continue
			}
			b.deliver(s, msg)
		}
		return nil
	}
}

func (b *Bus) deliver(s *Subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus subscriber panic recovered",
				"exchange", msg.Exchange,
				"routing_key", msg.RoutingKey,
				"panic", r,
			)
		}
	}()
	s.fn(msg)
}
