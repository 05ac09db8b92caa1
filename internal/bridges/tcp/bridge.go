package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Bridge defaults.
const (
	defaultBridgeID     = "tcp-bridge"
	defaultPollInterval = 30 * time.Second
	commandTimeout      = 10 * time.Second

	// minTopicParts is graylogic/{category}/tcp/{address}.
	minTopicParts = 4
)

// MQTTClient is the MQTT surface the bridge needs.
// main adapts *mqtt.Client to this interface.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// DeviceRegistry persists light records, state and health.
// It is optional; *device.Registry satisfies it through an adapter in main.
type DeviceRegistry interface {
	// CreateDeviceIfNotExists seeds a record; existing records are left alone.
	CreateDeviceIfNotExists(ctx context.Context, seed DeviceSeed) error
	SetDeviceState(ctx context.Context, id string, state map[string]any) error
	SetDeviceHealth(ctx context.Context, id string, status string) error
}

// MetricsWriter records light telemetry. Optional.
type MetricsWriter interface {
	WriteLightLevel(deviceID string, on bool, brightness int)
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceSeed describes a light to create in the device registry.
type DeviceSeed struct {
	ID           string
	Name         string
	Address      string
	Capabilities []string
}

// LightState is the hub-side view of a light after a refresh.
type LightState struct {
	On         bool `json:"on"`
	Brightness int  `json:"brightness"`
}

// LightView is a read-only snapshot of one managed light.
type LightView struct {
	ID                string  `json:"id"`
	Address           string  `json:"address"`
	Name              string  `json:"name"`
	On                bool    `json:"on"`
	Brightness        int     `json:"brightness"`
	SupportedFeatures Feature `json:"supported_features"`
	Online            bool    `json:"online"`
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge in health messages. Default "tcp-bridge".
	BridgeID string

	// Version is reported in health messages.
	Version string

	// PollInterval is how often every session is refreshed. Default 30s.
	PollInterval time.Duration

	// PollTimeout bounds each refresh cycle. Default 10s.
	PollTimeout time.Duration

	// HealthInterval is how often health is published. Default 30s.
	HealthInterval time.Duration

	// MQTTClient is required.
	MQTTClient MQTTClient

	Registry DeviceRegistry
	Metrics  MetricsWriter
	Logger   Logger
}

// Bridge is the host side of the TCP Connected integration.
//
// It is the Registrar that Setup hands lights to. Once started it relays
// MQTT commands to the lights, refreshes the gateway on a timer, and
// publishes state changes to MQTT, the device registry, telemetry and any
// registered listeners.
//
// Light and Session make no concurrency guarantees, so every call into
// them is serialised by gatewayMu. Reads are served from snapshots under
// lightsMu and never wait on the gateway.
type Bridge struct {
	id           string
	version      string
	pollInterval time.Duration
	pollTimeout  time.Duration
	mqtt         MQTTClient
	registry     DeviceRegistry
	metrics      MetricsWriter
	logger       Logger
	health       *HealthReporter

	gatewayMu sync.Mutex

	lightsMu sync.Mutex
	lights   map[string]*Light    // by registry device ID
	order    []string             // registration order
	byAddr   map[string]string    // gateway device ID -> registry device ID
	views    map[string]LightView // as of the last refresh

	stateMu    sync.RWMutex
	stateCache map[string]LightState
	online     map[string]bool

	listenerMu sync.RWMutex
	listeners  []func(StateMessage)

	pollNow chan struct{}
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context

	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewBridge creates a bridge. Lights are added with AddLights (usually via
// Setup) and the bridge begins operating on Start.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	id := opts.BridgeID
	if id == "" {
		id = defaultBridgeID
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = commandTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		id:           id,
		version:      opts.Version,
		pollInterval: interval,
		pollTimeout:  pollTimeout,
		mqtt:         opts.MQTTClient,
		registry:     opts.Registry,
		metrics:      opts.Metrics,
		logger:       logger,
		health:       NewHealthReporter(id, opts.Version, opts.HealthInterval, opts.MQTTClient, logger),
		lights:       make(map[string]*Light),
		byAddr:       make(map[string]string),
		views:        make(map[string]LightView),
		stateCache:   make(map[string]LightState),
		online:       make(map[string]bool),
		pollNow:      make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// AddLights registers lights with the bridge and seeds the device registry.
// Lights whose gateway ID is already registered replace the old adapter.
// Every seed must succeed before any light is registered.
func (b *Bridge) AddLights(ctx context.Context, lights []*Light) error {
	views := make([]LightView, 0, len(lights))
	b.gatewayMu.Lock()
	for _, l := range lights {
		views = append(views, snapshot(l))
	}
	b.gatewayMu.Unlock()

	if b.registry != nil {
		for _, v := range views {
			seed := DeviceSeed{
				ID:           v.ID,
				Name:         v.Name,
				Address:      v.Address,
				Capabilities: []string{"on_off", "dim"},
			}
			if err := b.registry.CreateDeviceIfNotExists(ctx, seed); err != nil {
				return fmt.Errorf("seeding device %s: %w", seed.ID, err)
			}
		}
	}

	b.lightsMu.Lock()
	for i, l := range lights {
		v := views[i]
		if _, exists := b.lights[v.ID]; !exists {
			b.order = append(b.order, v.ID)
		}
		b.lights[v.ID] = l
		b.byAddr[v.Address] = v.ID
		b.views[v.ID] = v
	}
	count := len(b.lights)
	b.lightsMu.Unlock()

	b.health.SetDeviceCount(count)
	b.logger.Info("lights registered", "added", len(lights), "total", count)
	return nil
}

// snapshot reads a light's properties. The caller holds gatewayMu.
func snapshot(l *Light) LightView {
	return LightView{
		ID:                DeviceID(l.ID()),
		Address:           l.ID(),
		Name:              l.Name(),
		On:                l.IsOn(),
		Brightness:        l.Brightness(),
		SupportedFeatures: l.SupportedFeatures(),
	}
}

// OnStateChange registers a listener for state changes. Listeners are
// called synchronously from the poll loop and must not block.
func (b *Bridge) OnStateChange(listener func(StateMessage)) {
	b.listenerMu.Lock()
	b.listeners = append(b.listeners, listener)
	b.listenerMu.Unlock()
}

// Start subscribes to commands, performs the first refresh and launches the
// poll and health loops.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return nil
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	refreshCtx, cancel := context.WithTimeout(ctx, b.pollTimeout)
	err := b.Refresh(refreshCtx)
	cancel()
	if err != nil {
		b.logger.Warn("initial refresh failed", "error", err)
	}

	b.health.Start(b.ctx)
	b.wg.Add(1)
	go b.pollLoop()

	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish health", "error", err)
	}

	b.started = true
	b.logger.Info("bridge started", "bridge_id", b.id, "lights", b.LightCount(), "poll_interval", b.pollInterval)
	return nil
}

// Stop halts the poll loop and publishes a final health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// LightCount returns the number of registered lights.
func (b *Bridge) LightCount() int {
	b.lightsMu.Lock()
	defer b.lightsMu.Unlock()
	return len(b.lights)
}

// Health returns the bridge health status and reason.
func (b *Bridge) Health() (HealthStatus, string) {
	return b.health.Status()
}

// Lights returns a snapshot of every light, in registration order.
// Values reflect the last refresh.
func (b *Bridge) Lights() []LightView {
	b.lightsMu.Lock()
	defer b.lightsMu.Unlock()

	views := make([]LightView, 0, len(b.order))
	for _, id := range b.order {
		views = append(views, b.viewLocked(id))
	}
	return views
}

// Light returns a snapshot of one light by registry ID.
func (b *Bridge) Light(id string) (LightView, error) {
	b.lightsMu.Lock()
	defer b.lightsMu.Unlock()

	if _, ok := b.lights[id]; !ok {
		return LightView{}, ErrDeviceNotFound
	}
	return b.viewLocked(id), nil
}

func (b *Bridge) viewLocked(id string) LightView {
	v := b.views[id]

	b.stateMu.RLock()
	online, seen := b.online[id]
	b.stateMu.RUnlock()

	v.Online = !seen || online
	return v
}

// SetLightState switches a light on or off. When on is true, brightness
// (hub scale, 0-255) is optional and defaults to full. A refresh is queued
// afterwards so the new state is published.
func (b *Bridge) SetLightState(ctx context.Context, id string, on bool, brightness *int) error {
	command := CommandOff
	if on {
		command = CommandOn
	}
	if err := b.execute(ctx, id, command, brightness); err != nil {
		return err
	}
	b.requestPoll()
	return nil
}

// execute runs one command against a light.
func (b *Bridge) execute(ctx context.Context, id, command string, brightness *int) error {
	if brightness != nil && (*brightness < 0 || *brightness > MaxHubLevel) {
		return ErrInvalidBrightness
	}

	b.lightsMu.Lock()
	l, ok := b.lights[id]
	b.lightsMu.Unlock()
	if !ok {
		return ErrDeviceNotFound
	}

	b.gatewayMu.Lock()
	defer b.gatewayMu.Unlock()

	switch command {
	case CommandOn:
		if brightness != nil {
			return l.TurnOn(ctx, WithBrightness(*brightness))
		}
		return l.TurnOn(ctx)
	case CommandOff:
		return l.TurnOff(ctx)
	case CommandDim:
		if brightness == nil {
			return fmt.Errorf("%w: dim requires brightness", ErrInvalidBrightness)
		}
		if *brightness == 0 {
			return l.TurnOff(ctx)
		}
		return l.TurnOn(ctx, WithBrightness(*brightness))
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// Refresh pulls fresh state from every session and publishes changes.
//
// Each distinct session is refreshed once, however many lights share it.
// Lights on a session that failed to refresh are marked offline and the
// first failure is returned. A cancelled refresh writes nothing.
func (b *Bridge) Refresh(ctx context.Context) error {
	b.lightsMu.Lock()
	ids := append([]string(nil), b.order...)
	lights := make([]*Light, len(ids))
	for i, id := range ids {
		lights[i] = b.lights[id]
	}
	b.lightsMu.Unlock()

	type result struct {
		view LightView
		err  error
	}
	results := make([]result, len(lights))
	failed := make(map[Session]error)
	refreshed := make(map[Session]bool)
	var firstErr error

	b.gatewayMu.Lock()
	for _, l := range lights {
		s := l.Session()
		if refreshed[s] {
			continue
		}
		refreshed[s] = true
		if err := l.Refresh(ctx); err != nil {
			failed[s] = err
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for i, l := range lights {
		results[i].err = failed[l.Session()]
		if results[i].err == nil {
			results[i].view = snapshot(l)
		}
	}
	b.gatewayMu.Unlock()

	if errors.Is(firstErr, context.Canceled) {
		return fmt.Errorf("refreshing lights: %w", firstErr)
	}

	b.lightsMu.Lock()
	for i, r := range results {
		if r.err == nil && b.lights[ids[i]] == lights[i] {
			b.views[ids[i]] = r.view
		}
	}
	b.lightsMu.Unlock()

	for i, r := range results {
		if r.err != nil {
			b.markHealth(ctx, ids[i], false)
			continue
		}
		b.markHealth(ctx, ids[i], true)
		b.recordState(ctx, ids[i], r.view.Address, LightState{On: r.view.On, Brightness: r.view.Brightness})
	}

	b.health.RecordPoll(time.Now(), firstErr)
	if firstErr != nil {
		return fmt.Errorf("refreshing lights: %w", firstErr)
	}
	return nil
}

// recordState publishes a state change and writes telemetry.
func (b *Bridge) recordState(ctx context.Context, id, address string, state LightState) {
	if b.metrics != nil {
		b.metrics.WriteLightLevel(id, state.On, state.Brightness)
	}

	b.stateMu.Lock()
	prev, seen := b.stateCache[id]
	b.stateCache[id] = state
	b.stateMu.Unlock()

	if seen && prev == state {
		return
	}

	msg := NewStateMessage(id, address, state)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "device_id", id, "error", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(address), payload, 1, true); err != nil {
		b.logger.Error("failed to publish state", "device_id", id, "error", err)
	}

	if b.registry != nil {
		if err := b.registry.SetDeviceState(ctx, id, msg.State); err != nil {
			b.logger.Warn("state update to registry failed", "device_id", id, "error", err)
		}
	}

	b.listenerMu.RLock()
	listeners := b.listeners
	b.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(msg)
	}

	b.logger.Debug("light state changed", "device_id", id, "on", state.On, "brightness", state.Brightness)
}

// markHealth writes health to the registry when it changes.
func (b *Bridge) markHealth(ctx context.Context, id string, online bool) {
	b.stateMu.Lock()
	prev, seen := b.online[id]
	b.online[id] = online
	b.stateMu.Unlock()

	if seen && prev == online {
		return
	}
	if b.registry == nil {
		return
	}

	status := "online"
	if !online {
		status = "offline"
	}
	if err := b.registry.SetDeviceHealth(ctx, id, status); err != nil {
		b.logger.Warn("health update to registry failed", "device_id", id, "error", err)
	}
}

// pollLoop refreshes on a timer or when a command requests it.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		case <-b.pollNow:
		}
		ctx, cancel := context.WithTimeout(b.ctx, b.pollTimeout)
		err := b.Refresh(ctx)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("refresh failed", "error", err)
		}
	}
}

// requestPoll queues a refresh without blocking.
func (b *Bridge) requestPoll() {
	select {
	case b.pollNow <- struct{}{}:
	default:
	}
}

// handleMQTTMessage handles graylogic/command/tcp/{address}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[1] != "command" {
		b.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	address := parts[len(parts)-1]

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Error("failed to parse command", "topic", topic, "error", err)
		return
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"address", address,
		"command", cmd.Command)

	b.lightsMu.Lock()
	id, ok := b.byAddr[address]
	b.lightsMu.Unlock()
	if !ok {
		b.publishAck(address, NewAckError(cmd, address, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", address)))
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = id
	}

	switch cmd.Command {
	case CommandOn, CommandOff, CommandDim:
	default:
		b.publishAck(address, NewAckError(cmd, address, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command)))
		return
	}

	brightness, err := brightnessParam(cmd.Parameters)
	if err != nil {
		b.publishAck(address, NewAckError(cmd, address, ErrCodeInvalidParameters, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.execute(ctx, id, cmd.Command, brightness); err != nil {
		code := ErrCodeDeviceUnreachable
		if errors.Is(err, ErrInvalidBrightness) {
			code = ErrCodeInvalidParameters
		}
		b.logger.Error("command execution failed", "device_id", id, "command", cmd.Command, "error", err)
		b.publishAck(address, NewAckError(cmd, address, code, err.Error()))
		return
	}

	b.publishAck(address, NewAckMessage(cmd, address))
	b.requestPoll()
}

// brightnessParam extracts the optional "brightness" parameter.
func brightnessParam(params map[string]any) (*int, error) {
	raw, ok := params["brightness"]
	if !ok {
		return nil, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("'brightness' must be a number")
	}
	if f < 0 || f > MaxHubLevel {
		return nil, fmt.Errorf("'brightness' must be 0-%d, got %.2f", MaxHubLevel, f)
	}
	v := int(f)
	return &v, nil
}

func (b *Bridge) publishAck(address string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(address), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "address", address, "error", err)
	}
}
