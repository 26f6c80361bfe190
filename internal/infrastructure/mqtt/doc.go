// Package mqtt provides the broker connection behind the gateway's event bus.
//
// Watchers of the bus resource and the HTTP publish endpoint reach each other
// through an MQTT broker, so several gateway instances share one event stream.
//
//	client ↔ gateway ↔ MQTT broker ↔ other gateways / producers
//
// This package manages:
//   - Connection with auto-reconnect and subscription restoration
//   - Publishing with QoS acknowledgement
//   - Last Will and Testament on a retained presence topic
//   - Mapping of exchanges and dotted routing keys onto topics (see Topics)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	filter, _ := client.Topics().Filter("on.events", "graph.*.#")
//	err = client.Subscribe(filter, 1, func(topic string, payload []byte) error {
//	    exchange, routingKey, _ := client.Topics().Parse(topic)
//	    ...
//	    return nil
//	})
//
// TLS should be enabled for any broker reachable off-host (cfg.Broker.TLS).
package mqtt
