// Package bus is the gateway's publish/subscribe event bus.
//
// Events are published to a named exchange with a dotted routing key
// ("graph.started.abc"). Subscribers bind a pattern where '*' matches one
// word and a trailing '#' matches any remaining words. Exchanges and routing
// keys are carried over MQTT topics (see mqtt.Topics), so every gateway
// attached to the same broker sees the same events.
//
// The MQTT client keeps one handler per topic filter. The Bus therefore holds
// one broker subscription per filter and fans messages out to any number of
// local subscribers, unsubscribing from the broker when the last one leaves.
//
//	b := bus.New(mqttClient, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
//	sub, err := b.Subscribe("on.events", "graph.#", func(m bus.Message) {
//	    ...
//	})
//	defer sub.Dispose()
//
//	err = b.Publish("on.events", "graph.started.abc", map[string]any{"id": "abc"})
package bus
