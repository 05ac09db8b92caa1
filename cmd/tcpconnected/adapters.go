package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/auth"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/bridges/tcp"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/device"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/mqtt"
)

// errNoGatewayClient is returned when simulation is off. Only the in-memory
// gateway ships with this binary.
var errNoGatewayClient = errors.New("no TCP Connected gateway client is built in; set tcpconnected.simulate to use the simulator")

// mqttBridgeAdapter adapts *mqtt.Client to tcp.MQTTClient. Bridge handlers
// do not return errors, so they are wrapped to return nil.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// deviceRegistry is the subset of *device.Registry the bridge writes to.
type deviceRegistry interface {
	CreateDeviceIfNotExists(ctx context.Context, d *device.Device) (bool, error)
	SetDeviceState(ctx context.Context, id string, state device.State) error
	SetDeviceHealth(ctx context.Context, id string, status device.HealthStatus) error
}

// registryAdapter adapts the device registry to tcp.DeviceRegistry.
type registryAdapter struct {
	registry deviceRegistry
}

func (a *registryAdapter) CreateDeviceIfNotExists(ctx context.Context, seed tcp.DeviceSeed) error {
	_, err := a.registry.CreateDeviceIfNotExists(ctx, deviceFromSeed(seed))
	return err
}

func (a *registryAdapter) SetDeviceState(ctx context.Context, id string, state map[string]any) error {
	return a.registry.SetDeviceState(ctx, id, device.State(state))
}

func (a *registryAdapter) SetDeviceHealth(ctx context.Context, id string, status string) error {
	return a.registry.SetDeviceHealth(ctx, id, device.HealthStatus(status))
}

// deviceFromSeed builds the registry record for a newly discovered light.
// Gateways may report unnamed bulbs; those are named after their address.
// Over-long names are shortened to what the registry accepts.
func deviceFromSeed(seed tcp.DeviceSeed) *device.Device {
	name := device.FitName(seed.Name)
	if name == "" {
		name = "Light " + seed.Address
	}

	d := &device.Device{
		ID:           seed.ID,
		Name:         name,
		Slug:         device.GenerateSlug(name),
		Type:         device.DeviceTypeLightSwitch,
		Domain:       device.DomainLighting,
		Protocol:     device.ProtocolTCPConnected,
		Address:      device.Address{device.AddressKeyGatewayDevice: seed.Address},
		State:        device.State{},
		HealthStatus: device.HealthStatusUnknown,
	}
	for _, c := range seed.Capabilities {
		capability := device.Capability(c)
		d.Capabilities = append(d.Capabilities, capability)
		if capability == device.CapDim {
			d.Type = device.DeviceTypeLightDimmer
		}
	}
	return d
}

// lastWill is published by the broker if the bridge drops off without a
// clean disconnect.
func lastWill(id string) mqtt.Will {
	payload, err := json.Marshal(tcp.NewLWTMessage(id))
	if err != nil {
		// HealthMessage has only plain fields.
		panic(err)
	}
	return mqtt.Will{
		Topic:    tcp.HealthTopic(),
		Payload:  payload,
		QoS:      1,
		Retained: true,
	}
}

// gatewayOpener returns the Opener for cfg.
func gatewayOpener(cfg config.TCPConnectedConfig) (tcp.Opener, error) {
	if !cfg.Simulate {
		return nil, errNoGatewayClient
	}
	return tcp.NewSimulator(cfg.AccessToken, simulatedRooms(cfg.Rooms)), nil
}

func simulatedRooms(rooms []config.SimulatedRoomConfig) []tcp.SimulatedRoom {
	out := make([]tcp.SimulatedRoom, 0, len(rooms))
	for _, r := range rooms {
		room := tcp.SimulatedRoom{Name: r.Name}
		for _, d := range r.Devices {
			room.Devices = append(room.Devices, tcp.SimulatedDevice{
				ID:    d.ID,
				Name:  d.Name,
				On:    d.On,
				Level: d.Level,
			})
		}
		out = append(out, room)
	}
	return out
}

func usersFromConfig(users []config.UserConfig) []auth.User {
	out := make([]auth.User, 0, len(users))
	for _, u := range users {
		out = append(out, auth.User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Role:         auth.Role(u.Role),
		})
	}
	return out
}

// printPasswordHash reads one line from r and writes its hash to w.
func printPasswordHash(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password is empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
