package tcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the subset of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter publishes the bridge health topic on a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	logger    Logger

	mu          sync.RWMutex
	deviceCount int
	lastPoll    time.Time
	lastErr     error

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(bridgeID, version string, interval time.Duration, publisher HealthPublisher, logger Logger) *HealthReporter {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &HealthReporter{
		bridgeID:  bridgeID,
		version:   version,
		startTime: time.Now(),
		interval:  interval,
		publisher: publisher,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the periodic report loop.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends the loop and publishes a final "stopping" status.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best effort during shutdown
		h.publish(HealthStopping, "")
	})
}

// SetDeviceCount records how many lights the bridge manages.
func (h *HealthReporter) SetDeviceCount(n int) {
	h.mu.Lock()
	h.deviceCount = n
	h.mu.Unlock()
}

// RecordPoll records the outcome of a refresh cycle. A nil error clears
// any previous failure.
func (h *HealthReporter) RecordPoll(at time.Time, err error) {
	h.mu.Lock()
	h.lastPoll = at
	h.lastErr = err
	h.mu.Unlock()
}

// Status returns the current health and, when not healthy, the reason.
func (h *HealthReporter) Status() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	h.mu.RLock()
	lastErr := h.lastErr
	h.mu.RUnlock()

	if lastErr != nil {
		return HealthDegraded, "gateway refresh failed: " + lastErr.Error()
	}
	return HealthHealthy, ""
}

// PublishStarting publishes the "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.Status()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.mu.RLock()
	msg := HealthMessage{
		Bridge:         h.bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		DevicesManaged: h.deviceCount,
		Reason:         reason,
	}
	if !h.lastPoll.IsZero() {
		lastPoll := h.lastPoll.UTC()
		msg.LastPoll = &lastPoll
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}
