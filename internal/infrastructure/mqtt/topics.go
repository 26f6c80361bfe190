package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots every bus topic when no prefix is configured.
const DefaultTopicPrefix = "inventory/bus"

// statusLevel is the reserved first level under the prefix for presence topics.
// Exchange names may not start with '$', so it never collides with an exchange.
const statusLevel = "$status"

// Topics maps named exchanges and dotted routing keys onto MQTT topics.
//
// An exchange becomes one topic level under the prefix and every word of the
// routing key becomes a further level:
//
//	topics := mqtt.NewTopics("inventory/bus")
//	topic, _ := topics.Event("on.events", "graph.started.abc")
//	// Returns: "inventory/bus/on.events/graph/started/abc"
//
// Binding patterns use '*' for exactly one word and '#' for zero or more
// trailing words; they map onto MQTT '+' and '#'.
type Topics struct {
	prefix string
}

// NewTopics returns a mapper rooted at prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Status returns the retained presence topic for a client.
//
// Example: inventory/bus/$status/inventory-gateway
func (t Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix(), statusLevel, clientID)
}

// AllEvents returns a filter matching every exchange.
func (t Topics) AllEvents() string {
	return t.Prefix() + "/#"
}

// Event returns the concrete topic for publishing routingKey on exchange.
func (t Topics) Event(exchange, routingKey string) (string, error) {
	if err := validateExchange(exchange); err != nil {
		return "", err
	}
	base := t.Prefix() + "/" + exchange
	if routingKey == "" {
		return base, nil
	}

	words := strings.Split(routingKey, ".")
	for _, w := range words {
		if strings.ContainsAny(w, "/+#\x00") || w == "*" {
			return "", fmt.Errorf("%w: routing key %q contains wildcard or separator characters", ErrInvalidTopic, routingKey)
		}
	}
	return base + "/" + strings.Join(words, "/"), nil
}

// Filter returns the subscription filter for a binding pattern on exchange.
func (t Topics) Filter(exchange, pattern string) (string, error) {
	if err := validateExchange(exchange); err != nil {
		return "", err
	}
	base := t.Prefix() + "/" + exchange
	if pattern == "" {
		return base, nil
	}

	words := strings.Split(pattern, ".")
	levels := make([]string, len(words))
	for i, w := range words {
		switch {
		case w == "*":
			levels[i] = "+"
		case w == "#":
			if i != len(words)-1 {
				return "", fmt.Errorf("%w: '#' is only supported as the last word of %q", ErrInvalidTopic, pattern)
			}
			levels[i] = "#"
		case strings.ContainsAny(w, "/+#*\x00"):
			return "", fmt.Errorf("%w: pattern %q has a malformed word %q", ErrInvalidTopic, pattern, w)
		default:
			levels[i] = w
		}
	}
	return base + "/" + strings.Join(levels, "/"), nil
}

// Parse splits a received topic back into exchange and routing key.
// It reports false for topics outside the prefix and for presence topics.
func (t Topics) Parse(topic string) (exchange, routingKey string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/")
	if !found || rest == "" {
		return "", "", false
	}

	exchange, levels, _ := strings.Cut(rest, "/")
	if exchange == "" || strings.HasPrefix(exchange, "$") {
		return "", "", false
	}
	return exchange, strings.ReplaceAll(levels, "/", "."), true
}

func validateExchange(exchange string) error {
	if exchange == "" {
		return fmt.Errorf("%w: exchange is required", ErrInvalidTopic)
	}
	if strings.HasPrefix(exchange, "$") || strings.ContainsAny(exchange, "/+#*\x00") {
		return fmt.Errorf("%w: exchange %q contains reserved characters", ErrInvalidTopic, exchange)
	}
	return nil
}

// MatchTopic reports whether a concrete topic matches an MQTT filter using
// '+' (one level) and a trailing '#' (zero or more levels).
func MatchTopic(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, f := range filterLevels {
		if f == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if f != "+" && f != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
