package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/config"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakePaho implements pahomqtt.Client without a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	connectToken *fakeToken
	publishErr   error
	subscribeErr error
	published    []string
	handlers     map[string]pahomqtt.MessageHandler
	subscribes   int
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	if f.connectToken != nil {
		return f.connectToken
	}
	return &fakeToken{}
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}
func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}
	f.published = append(f.published, topic)
	return &fakeToken{}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = cb
	return &fakeToken{}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}
func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token        { return &fakeToken{} }
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler)    {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader { return pahomqtt.ClientOptionsReader{} }

func (f *fakePaho) deliver(subscription, topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[subscription]
	f.mu.Unlock()
	cb(f, &fakeMessage{topic: topic, payload: payload})
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-tcpconnected-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := &Client{
		client:        fake,
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
	if err := c.connect(); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	return c, fake
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "pw"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graylogic-tcpconnected-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker = %q", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum")
	}
}

func TestWithWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	WithWill(Will{
		Topic:    "graylogic/health/tcp",
		Payload:  []byte(`{"status":"offline"}`),
		QoS:      1,
		Retained: true,
	})(&Client{}, opts)

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != "graylogic/health/tcp" || string(opts.WillPayload) != `{"status":"offline"}` {
		t.Errorf("will = %s %s", opts.WillTopic, opts.WillPayload)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will qos=%d retained=%v", opts.WillQos, opts.WillRetained)
	}
}

func TestWithLogger(t *testing.T) {
	c := &Client{}
	logger := &recordingLogger{}

	WithLogger(logger)(c, buildClientOptions(testConfig()))

	if c.getLogger() != logger {
		t.Error("logger not set")
	}
}

func TestConnect_Failures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"broker refused", &fakeToken{err: errors.New("connection refused")}},
		{"timeout", &fakeToken{pending: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakePaho()
			fake.connectToken = tt.token
			c := &Client{client: fake, subscriptions: make(map[string]subscription)}

			err := c.connect()
			if !errors.Is(err, ErrConnectionFailed) {
				t.Fatalf("connect() error = %v, want ErrConnectionFailed", err)
			}
			if c.IsConnected() {
				t.Error("IsConnected() = true after failed connect")
			}
		})
	}
}

func TestPublish(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Publish("graylogic/state/tcp/216438", []byte(`{}`), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(fake.published) != 1 || fake.published[0] != "graylogic/state/tcp/216438" {
		t.Errorf("published = %v", fake.published)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "t", nil, 3, ErrInvalidQoS},
		{"payload too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_BrokerError(t *testing.T) {
	c, fake := newTestClient(t)
	fake.publishErr = errors.New("not authorised")

	err := c.Publish("graylogic/ack/tcp/1", []byte(`{}`), 1, false)
	if !errors.Is(err, ErrPublishFailed) || !strings.Contains(err.Error(), "not authorised") {
		t.Errorf("Publish() error = %v", err)
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, fake := newTestClient(t)
	fake.Disconnect(0)

	if err := c.Publish("t", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_DeliversMessages(t *testing.T) {
	c, fake := newTestClient(t)

	var gotTopic, gotPayload string
	err := c.Subscribe("graylogic/command/tcp/+", 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}

	fake.deliver("graylogic/command/tcp/+", "graylogic/command/tcp/42", []byte(`{"command":"on"}`))

	if gotTopic != "graylogic/command/tcp/42" || gotPayload != `{"command":"on"}` {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestSubscribe_BrokerErrorForgetsTopic(t *testing.T) {
	c, fake := newTestClient(t)
	fake.subscribeErr = errors.New("acl denied")

	err := c.Subscribe("graylogic/command/tcp/+", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failure, want 0", c.SubscriptionCount())
	}
}

func TestSubscribe_Disconnected(t *testing.T) {
	c, fake := newTestClient(t)
	fake.Disconnect(0)

	err := c.Subscribe("t", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestReconnect_RestoresSubscriptionsAndNotifies(t *testing.T) {
	c, fake := newTestClient(t)
	if err := c.Subscribe("graylogic/command/tcp/+", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var lostErr error
	reconnected := false
	c.SetOnDisconnect(func(err error) { lostErr = err })
	c.SetOnConnect(func() { reconnected = true })

	c.handleDisconnect(errors.New("EOF"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if lostErr == nil || lostErr.Error() != "EOF" {
		t.Errorf("disconnect callback error = %v", lostErr)
	}

	c.handleConnect()

	if !reconnected {
		t.Error("connect callback not called")
	}
	if fake.subscribes != 2 {
		t.Errorf("broker saw %d subscribes, want 2 (initial + restore)", fake.subscribes)
	}
}

func TestWrapHandler_RecoversPanicAndLogsErrors(t *testing.T) {
	c, fake := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") })
	_ = c.Subscribe("fail", 1, func(string, []byte) error { return errors.New("bad payload") })

	fake.deliver("panic", "panic", nil)
	fake.deliver("fail", "fail", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %v, want one panic", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %v, want one handler error", logger.warns)
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	fake.Disconnect(0)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v", err)
	}
}

func TestClose(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected {
		t.Error("paho Disconnect not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
