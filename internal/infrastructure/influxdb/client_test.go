package influxdb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/config"
)

// fakeWriteAPI records points instead of sending them.
type fakeWriteAPI struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
	errs    chan error
}

func newFakeWriteAPI() *fakeWriteAPI {
	return &fakeWriteAPI{errs: make(chan error, 1)}
}

func (f *fakeWriteAPI) WriteRecord(string) {}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func (f *fakeWriteAPI) SetWriteFailedCallback(api.WriteFailedCallback) {}

func (f *fakeWriteAPI) snapshot() ([]*write.Point, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...), f.flushes
}

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestWriteLightLevel(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(fake, testConfig())

	c.WriteLightLevel("tcp-216438", true, 153)

	points, _ := fake.snapshot()
	require.Len(t, points, 1)
	p := points[0]
	assert.Equal(t, "light_level", p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "tcp-216438", tags["device_id"])
	assert.Equal(t, "tcp_connected", tags["protocol"])

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, true, fields["on"])
	assert.Equal(t, int64(153), fields["brightness"])
	assert.Equal(t, int64(60), fields["level"])
}

func TestClose_FlushesAndStopsWrites(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(fake, testConfig())

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	c.WriteLightLevel("tcp-1", false, 0)
	c.Flush()
	require.NoError(t, c.Close())

	points, flushes := fake.snapshot()
	assert.Empty(t, points)
	assert.Equal(t, 1, flushes)
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := newClient(newFakeWriteAPI(), testConfig())
	assert.ErrorIs(t, c.HealthCheck(t.Context()), ErrNotConnected)
}

func TestOnErrorCallback(t *testing.T) {
	fake := newFakeWriteAPI()
	c := newClient(fake, testConfig())

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	fake.errs <- errors.New("bucket not found")

	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.Contains(t, err.Error(), "bucket not found")
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
	close(fake.errs)
}
