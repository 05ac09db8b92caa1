// Package tcp integrates TCP Connected light bulbs with Gray Logic.
//
// The vendor gateway is reached through the Opener, Session, Room, Device
// and Gateway interfaces; this package never speaks the wire protocol
// itself. Simulator provides an in-memory gateway for commissioning and
// tests.
//
// # Components
//
//   - ToDeviceLevel / ToHubLevel convert between the hub brightness scale
//     (0-255) and the device level scale (0-100), truncating in both
//     directions.
//   - Light adapts one device handle plus the shared session to the Gray
//     Logic light model (name, power, brightness, on, off, refresh).
//   - Setup opens a session, walks rooms and devices, and registers one Light
//     per device in a single batch.
//   - Bridge is the registrar. It relays MQTT commands to lights, polls the
//     gateway, and publishes state, health and telemetry.
//
// # MQTT Topics
//
//	graylogic/command/tcp/{address}  Core -> bridge
//	graylogic/ack/tcp/{address}      bridge -> Core
//	graylogic/state/tcp/{address}    bridge -> Core (retained)
//	graylogic/health/tcp             bridge -> Core (retained, LWT)
//
// {address} is the gateway device ID; the registry device ID is "tcp-{address}".
//
// # Usage
//
//	bridge, err := tcp.NewBridge(tcp.BridgeOptions{MQTTClient: client})
//	if err != nil {
//	    return err
//	}
//	cfg := tcp.PlatformConfig{Host: host, AccessToken: token}
//	if err := tcp.Setup(ctx, cfg, opener, bridge); err != nil {
//	    return err
//	}
//	if err := bridge.Start(ctx); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package tcp
