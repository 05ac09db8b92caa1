// Package mqtt provides the broker connection for the TCP Connected bridge.
//
// The bridge talks to Gray Logic Core only through MQTT: it receives
// commands, publishes acknowledgements, retained light state and retained
// bridge health. This package manages:
//   - Connection to the broker with auto-reconnect and backoff
//   - Publishing with QoS validation and a payload size cap
//   - Subscriptions, restored automatically after reconnect
//   - An optional Last Will and Testament
//   - Panic recovery around message handlers
//
// Usage:
//
//	lwt, _ := json.Marshal(tcp.NewLWTMessage(bridgeID))
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithWill(mqtt.Will{Topic: tcp.HealthTopic(), Payload: lwt, QoS: 1, Retained: true}),
//	    mqtt.WithLogger(logger.With("component", "mqtt")))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Use TLS (mqtt.broker.tls) outside the lab; payloads are plain JSON.
package mqtt
