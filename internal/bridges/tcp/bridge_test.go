package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]func(topic string, payload []byte)
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SimulateMessage delivers payload on topic to the handler subscribed with pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

// PublishedTo returns every message published on topic.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeRegistry struct {
	mu      sync.Mutex
	seeds   []DeviceSeed
	states  map[string]map[string]any
	health  map[string]string
	seedErr error
	// failID limits seedErr to one device when set.
	failID string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{states: make(map[string]map[string]any), health: make(map[string]string)}
}

func (r *fakeRegistry) CreateDeviceIfNotExists(_ context.Context, seed DeviceSeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seedErr != nil && (r.failID == "" || r.failID == seed.ID) {
		return r.seedErr
	}
	r.seeds = append(r.seeds, seed)
	return nil
}

func (r *fakeRegistry) SetDeviceState(_ context.Context, id string, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = state
	return nil
}

func (r *fakeRegistry) SetDeviceHealth(_ context.Context, id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[id] = status
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	writes int
	last   map[string]int
}

func (m *fakeMetrics) WriteLightLevel(deviceID string, _ bool, brightness int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = make(map[string]int)
	}
	m.writes++
	m.last[deviceID] = brightness
}

type bridgeFixture struct {
	bridge   *Bridge
	mqtt     *MockMQTTClient
	sim      *Simulator
	registry *fakeRegistry
	metrics  *fakeMetrics
}

func newTestBridge(t *testing.T) *bridgeFixture {
	t.Helper()

	f := &bridgeFixture{
		mqtt:     NewMockMQTTClient(),
		sim:      NewSimulator("secret", testRooms()),
		registry: newFakeRegistry(),
		metrics:  &fakeMetrics{},
	}
	b, err := NewBridge(BridgeOptions{
		Version:      "test",
		PollInterval: time.Hour,
		MQTTClient:   f.mqtt,
		Registry:     f.registry,
		Metrics:      f.metrics,
	})
	require.NoError(t, err)
	f.bridge = b
	t.Cleanup(b.Stop)

	cfg := PlatformConfig{Host: "gateway.local", AccessToken: "secret"}
	require.NoError(t, Setup(context.Background(), cfg, f.sim, b))
	return f
}

func (f *bridgeFixture) command(t *testing.T, address string, cmd CommandMessage) AckMessage {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)

	f.bridge.handleMQTTMessage(CommandTopic(address), payload)

	acks := f.mqtt.PublishedTo(AckTopic(address))
	require.NotEmpty(t, acks, "no ack published for %s", address)
	var ack AckMessage
	require.NoError(t, json.Unmarshal(acks[len(acks)-1].Payload, &ack))
	return ack
}

func TestNewBridge_RequiresMQTT(t *testing.T) {
	_, err := NewBridge(BridgeOptions{})
	assert.Error(t, err)
}

func TestBridge_AddLightsSeedsRegistry(t *testing.T) {
	f := newTestBridge(t)

	assert.Equal(t, 2, f.bridge.LightCount())
	require.Len(t, f.registry.seeds, 2)
	assert.Equal(t, "tcp-100", f.registry.seeds[0].ID)
	assert.Equal(t, "Kitchen Pendant", f.registry.seeds[0].Name)
	assert.Equal(t, "100", f.registry.seeds[0].Address)
	assert.Equal(t, []string{"on_off", "dim"}, f.registry.seeds[0].Capabilities)
}

func TestBridge_AddLightsRegistryError(t *testing.T) {
	b, err := NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient(), Registry: &fakeRegistry{seedErr: errors.New("disk full")}})
	require.NoError(t, err)

	err = b.AddLights(context.Background(), []*Light{NewLight(newMockSession(), &fakeDevice{id: "1"})})

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, b.LightCount())
}

func TestBridge_AddLightsPartialSeedFailureRegistersNothing(t *testing.T) {
	mqttClient := NewMockMQTTClient()
	registry := newFakeRegistry()
	registry.seedErr = errors.New("device: already exists")
	registry.failID = "tcp-2"
	b, err := NewBridge(BridgeOptions{MQTTClient: mqttClient, Registry: registry})
	require.NoError(t, err)

	err = b.AddLights(context.Background(), []*Light{
		NewLight(newMockSession(), &fakeDevice{id: "1", name: "Porch"}),
		NewLight(newMockSession(), &fakeDevice{id: "2", name: "Porch"}),
	})

	require.ErrorContains(t, err, "tcp-2")
	assert.Equal(t, 0, b.LightCount())
	assert.Empty(t, b.Lights())
	_, err = b.Light("tcp-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	payload, err := json.Marshal(CommandMessage{ID: "c1", Command: CommandOn})
	require.NoError(t, err)
	b.handleMQTTMessage(CommandTopic("1"), payload)
	acks := mqttClient.PublishedTo(AckTopic("1"))
	require.Len(t, acks, 1)
	var ack AckMessage
	require.NoError(t, json.Unmarshal(acks[0].Payload, &ack))
	require.NotNil(t, ack.Error)
	assert.Equal(t, ErrCodeNotConfigured, ack.Error.Code)
}

func TestBridge_StartSubscribesAndPublishes(t *testing.T) {
	f := newTestBridge(t)

	require.NoError(t, f.bridge.Start(context.Background()))

	f.mqtt.mu.Lock()
	_, subscribed := f.mqtt.handlers[CommandSubscribeTopic()]
	f.mqtt.mu.Unlock()
	assert.True(t, subscribed, "command topic not subscribed")

	health := f.mqtt.PublishedTo(HealthTopic())
	require.GreaterOrEqual(t, len(health), 2)
	var first HealthMessage
	require.NoError(t, json.Unmarshal(health[0].Payload, &first))
	assert.Equal(t, HealthStarting, first.Status)
	var latest HealthMessage
	require.NoError(t, json.Unmarshal(health[len(health)-1].Payload, &latest))
	assert.Equal(t, HealthHealthy, latest.Status)
	assert.Equal(t, 2, latest.DevicesManaged)

	state := f.mqtt.PublishedTo(StateTopic("100"))
	require.Len(t, state, 1)
	assert.True(t, state[0].Retained)
	var msg StateMessage
	require.NoError(t, json.Unmarshal(state[0].Payload, &msg))
	assert.Equal(t, "tcp-100", msg.DeviceID)
	assert.Equal(t, true, msg.State["on"])
	assert.Equal(t, float64(153), msg.State["brightness"])

	f.registry.mu.Lock()
	assert.Equal(t, "online", f.registry.health["tcp-100"])
	assert.NotNil(t, f.registry.states["tcp-200"])
	f.registry.mu.Unlock()
}

func TestBridge_StopPublishesStopping(t *testing.T) {
	f := newTestBridge(t)
	require.NoError(t, f.bridge.Start(context.Background()))

	f.bridge.Stop()

	health := f.mqtt.PublishedTo(HealthTopic())
	var last HealthMessage
	require.NoError(t, json.Unmarshal(health[len(health)-1].Payload, &last))
	assert.Equal(t, HealthStopping, last.Status)
}

func TestBridge_CommandOn(t *testing.T) {
	f := newTestBridge(t)

	ack := f.command(t, "200", CommandMessage{
		ID:         "cmd-1",
		Command:    CommandOn,
		Parameters: map[string]any{"brightness": 128},
	})

	assert.Equal(t, AckAccepted, ack.Status)
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, "tcp-200", ack.DeviceID)
	assert.Equal(t, Protocol, ack.Protocol)
	gw, _ := f.sim.DeviceState("200")
	assert.True(t, gw.On)
	assert.Equal(t, 50, gw.Level)
}

func TestBridge_CommandOnDefaultsToFull(t *testing.T) {
	f := newTestBridge(t)

	ack := f.command(t, "200", CommandMessage{ID: "cmd-1", Command: CommandOn})

	assert.Equal(t, AckAccepted, ack.Status)
	gw, _ := f.sim.DeviceState("200")
	assert.Equal(t, MaxDeviceLevel, gw.Level)
}

func TestBridge_CommandDimZeroTurnsOff(t *testing.T) {
	f := newTestBridge(t)

	ack := f.command(t, "100", CommandMessage{
		ID:         "cmd-2",
		Command:    CommandDim,
		Parameters: map[string]any{"brightness": 0},
	})

	assert.Equal(t, AckAccepted, ack.Status)
	gw, _ := f.sim.DeviceState("100")
	assert.False(t, gw.On)
	assert.Equal(t, 60, gw.Level, "level untouched by off")
}

func TestBridge_CommandOff(t *testing.T) {
	f := newTestBridge(t)

	ack := f.command(t, "100", CommandMessage{ID: "cmd-3", Command: CommandOff})

	assert.Equal(t, AckAccepted, ack.Status)
	gw, _ := f.sim.DeviceState("100")
	assert.False(t, gw.On)
}

func TestBridge_CommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		cmd      CommandMessage
		wantCode string
	}{
		{
			name:     "unknown device",
			address:  "999",
			cmd:      CommandMessage{ID: "c", Command: CommandOn},
			wantCode: ErrCodeNotConfigured,
		},
		{
			name:     "unknown command",
			address:  "100",
			cmd:      CommandMessage{ID: "c", Command: "set_position"},
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "brightness out of range",
			address:  "100",
			cmd:      CommandMessage{ID: "c", Command: CommandOn, Parameters: map[string]any{"brightness": 300}},
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "brightness not a number",
			address:  "100",
			cmd:      CommandMessage{ID: "c", Command: CommandDim, Parameters: map[string]any{"brightness": "high"}},
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "dim without brightness",
			address:  "100",
			cmd:      CommandMessage{ID: "c", Command: CommandDim},
			wantCode: ErrCodeInvalidParameters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestBridge(t)

			ack := f.command(t, tt.address, tt.cmd)

			assert.Equal(t, AckFailed, ack.Status)
			require.NotNil(t, ack.Error)
			assert.Equal(t, tt.wantCode, ack.Error.Code)
		})
	}
}

func TestBridge_CommandGatewayFailure(t *testing.T) {
	session := newMockSession()
	dev := &fakeDevice{id: "7", name: "Porch"}
	session.gateway.On("TurnOffDevice", mock.Anything, dev).Return(errors.New("no route to host"))

	mq := NewMockMQTTClient()
	b, err := NewBridge(BridgeOptions{MQTTClient: mq})
	require.NoError(t, err)
	require.NoError(t, b.AddLights(context.Background(), []*Light{NewLight(session, dev)}))

	payload, _ := json.Marshal(CommandMessage{ID: "c", Command: CommandOff})
	b.handleMQTTMessage(CommandTopic("7"), payload)

	acks := mq.PublishedTo(AckTopic("7"))
	require.Len(t, acks, 1)
	var ack AckMessage
	require.NoError(t, json.Unmarshal(acks[0].Payload, &ack))
	assert.Equal(t, AckFailed, ack.Status)
	assert.Equal(t, ErrCodeDeviceUnreachable, ack.Error.Code)
	assert.True(t, strings.Contains(ack.Error.Message, "no route to host"))
}

func TestBridge_MalformedCommandIgnored(t *testing.T) {
	f := newTestBridge(t)

	f.bridge.handleMQTTMessage(CommandTopic("100"), []byte("{not json"))
	f.bridge.handleMQTTMessage("graylogic/state/tcp/100", []byte(`{}`))

	assert.Empty(t, f.mqtt.PublishedTo(AckTopic("100")))
}

func TestBridge_RefreshOncePerSession(t *testing.T) {
	session := newMockSession()
	session.On("UpdateState", mock.Anything).Return(nil)
	b, err := NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient()})
	require.NoError(t, err)
	require.NoError(t, b.AddLights(context.Background(), []*Light{
		NewLight(session, &fakeDevice{id: "1"}),
		NewLight(session, &fakeDevice{id: "2"}),
		NewLight(session, &fakeDevice{id: "3"}),
	}))

	require.NoError(t, b.Refresh(context.Background()))

	session.AssertNumberOfCalls(t, "UpdateState", 1)
}

func TestBridge_RefreshPublishesOnlyChanges(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, f.bridge.Refresh(ctx))
	require.NoError(t, f.bridge.Refresh(ctx))
	assert.Len(t, f.mqtt.PublishedTo(StateTopic("100")), 1)

	require.NoError(t, f.bridge.SetLightState(ctx, "tcp-100", false, nil))
	require.NoError(t, f.bridge.Refresh(ctx))

	states := f.mqtt.PublishedTo(StateTopic("100"))
	require.Len(t, states, 2)
	var msg StateMessage
	require.NoError(t, json.Unmarshal(states[1].Payload, &msg))
	assert.Equal(t, false, msg.State["on"])

	f.metrics.mu.Lock()
	assert.Equal(t, 6, f.metrics.writes, "telemetry is written every refresh")
	f.metrics.mu.Unlock()
}

func TestBridge_RefreshFailureMarksOffline(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()
	require.NoError(t, f.bridge.Refresh(ctx))

	wantErr := errors.New("gateway rebooting")
	f.sim.SetUpdateError(wantErr)

	err := f.bridge.Refresh(ctx)

	assert.ErrorIs(t, err, wantErr)
	f.registry.mu.Lock()
	assert.Equal(t, "offline", f.registry.health["tcp-100"])
	assert.Equal(t, "offline", f.registry.health["tcp-200"])
	f.registry.mu.Unlock()

	status, reason := f.bridge.Health()
	assert.Equal(t, HealthDegraded, status)
	assert.Contains(t, reason, "gateway rebooting")

	view, err := f.bridge.Light("tcp-100")
	require.NoError(t, err)
	assert.False(t, view.Online)

	f.sim.SetUpdateError(nil)
	require.NoError(t, f.bridge.Refresh(ctx))
	status, _ = f.bridge.Health()
	assert.Equal(t, HealthHealthy, status)
	f.registry.mu.Lock()
	assert.Equal(t, "online", f.registry.health["tcp-100"])
	f.registry.mu.Unlock()
}

func TestBridge_LightsSnapshot(t *testing.T) {
	f := newTestBridge(t)

	views := f.bridge.Lights()

	require.Len(t, views, 2)
	assert.Equal(t, "tcp-100", views[0].ID)
	assert.Equal(t, "100", views[0].Address)
	assert.Equal(t, "Kitchen Pendant", views[0].Name)
	assert.True(t, views[0].On)
	assert.Equal(t, 153, views[0].Brightness)
	assert.Equal(t, FeatureBrightness, views[0].SupportedFeatures)

	_, err := f.bridge.Light("tcp-999")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestBridge_SetLightState(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	var events []StateMessage
	f.bridge.OnStateChange(func(msg StateMessage) { events = append(events, msg) })

	level := 64
	require.NoError(t, f.bridge.SetLightState(ctx, "tcp-200", true, &level))
	require.NoError(t, f.bridge.Refresh(ctx))

	view, err := f.bridge.Light("tcp-200")
	require.NoError(t, err)
	assert.True(t, view.On)
	assert.Equal(t, 63, view.Brightness)

	require.Len(t, events, 2, "first refresh reports both lights")
	assert.Equal(t, "tcp-200", events[1].DeviceID)

	bad := 256
	assert.ErrorIs(t, f.bridge.SetLightState(ctx, "tcp-200", true, &bad), ErrInvalidBrightness)
	assert.ErrorIs(t, f.bridge.SetLightState(ctx, "tcp-404", true, nil), ErrDeviceNotFound)
}

// stalledSession never completes UpdateState until its context ends.
type stalledSession struct {
	calls atomic.Int32
}

func (s *stalledSession) Rooms(context.Context) ([]Room, error) { return nil, nil }

func (s *stalledSession) Gateway() Gateway { return &mockGateway{} }

func (s *stalledSession) UpdateState(ctx context.Context) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestBridge_StalledGatewayDoesNotBlockReads(t *testing.T) {
	session := &stalledSession{}
	b, err := NewBridge(BridgeOptions{
		MQTTClient:   NewMockMQTTClient(),
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, b.AddLights(context.Background(), []*Light{
		NewLight(session, &fakeDevice{id: "1", name: "Porch", on: true, level: 100}),
	}))

	b.wg.Add(1)
	go b.pollLoop()
	t.Cleanup(b.Stop)
	require.Eventually(t, func() bool { return session.calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		views := b.Lights()
		assert.Len(t, views, 1)
		assert.Equal(t, 1, b.LightCount())
		view, err := b.Light("tcp-1")
		assert.NoError(t, err)
		assert.Equal(t, 255, view.Brightness)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reads blocked behind a stalled refresh")
	}
}

func TestBridge_PollCycleIsBounded(t *testing.T) {
	session := &stalledSession{}
	registry := newFakeRegistry()
	b, err := NewBridge(BridgeOptions{
		MQTTClient:   NewMockMQTTClient(),
		Registry:     registry,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, b.AddLights(context.Background(), []*Light{NewLight(session, &fakeDevice{id: "1"})}))

	b.wg.Add(1)
	go b.pollLoop()
	t.Cleanup(b.Stop)

	require.Eventually(t, func() bool { return session.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond,
		"a stalled cycle must time out so the next one runs")
	status, reason := b.Health()
	assert.Equal(t, HealthDegraded, status)
	assert.Contains(t, reason, context.DeadlineExceeded.Error())

	registry.mu.Lock()
	assert.Equal(t, "offline", registry.health["tcp-1"])
	registry.mu.Unlock()
}

func TestBridge_CancelledRefreshWritesNothing(t *testing.T) {
	f := newTestBridge(t)
	require.NoError(t, f.bridge.Refresh(context.Background()))

	f.registry.mu.Lock()
	statesBefore := len(f.registry.states)
	f.registry.mu.Unlock()
	publishedBefore := len(f.mqtt.PublishedTo(StateTopic("100")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.bridge.Refresh(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	f.registry.mu.Lock()
	assert.Equal(t, "online", f.registry.health["tcp-100"])
	assert.Equal(t, "online", f.registry.health["tcp-200"])
	assert.Len(t, f.registry.states, statesBefore)
	f.registry.mu.Unlock()
	assert.Len(t, f.mqtt.PublishedTo(StateTopic("100")), publishedBefore)

	status, _ := f.bridge.Health()
	assert.Equal(t, HealthHealthy, status)
	view, err := f.bridge.Light("tcp-100")
	require.NoError(t, err)
	assert.True(t, view.Online)
}
