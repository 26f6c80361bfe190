package bus

import (
	"sync"

	"github.com/nerrad567/inventory-gateway/internal/infrastructure/mqtt"
)

// LocalBroker is an in-process Broker. Publish delivers synchronously to
// every matching filter. Used when bus.local is set and in tests.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers map[string]mqtt.MessageHandler
}

// NewLocalBroker creates an empty in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

// Subscribe registers handler for filter, replacing any previous handler.
func (l *LocalBroker) Subscribe(filter string, _ byte, handler mqtt.MessageHandler) error {
	if filter == "" {
		return mqtt.ErrInvalidTopic
	}
	l.mu.Lock()
	l.handlers[filter] = handler
	l.mu.Unlock()
	return nil
}

// Unsubscribe removes the handler for filter.
func (l *LocalBroker) Unsubscribe(filter string) error {
	l.mu.Lock()
	delete(l.handlers, filter)
	l.mu.Unlock()
	return nil
}

// Publish delivers payload to every filter matching topic.
func (l *LocalBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}

	l.mu.RLock()
	var targets []mqtt.MessageHandler
	for filter, handler := range l.handlers {
		if mqtt.MatchTopic(filter, topic) {
			targets = append(targets, handler)
		}
	}
	l.mu.RUnlock()

	for _, handler := range targets {
		_ = handler(topic, payload) //nolint:errcheck // Handler errors are the subscriber's concern
	}
	return nil
}

// Filters returns the number of registered filters.
func (l *LocalBroker) Filters() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}
