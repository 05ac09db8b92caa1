package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger is the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches light records over a Repository and optionally records
// every state change to a StateHistoryRepository.
//
// Values returned from the registry are deep copies. All methods are safe
// for concurrent use.
type Registry struct {
	repo    Repository
	history StateHistoryRepository

	cache   map[string]*Device
	cacheMu sync.RWMutex

	logger Logger
}

// NewRegistry creates a registry. Call RefreshCache before serving reads.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetStateHistory enables state history recording.
func (r *Registry) SetStateHistory(history StateHistoryRepository) {
	r.history = history
}

// RefreshCache reloads every device from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns ErrDeviceNotFound if id is unknown.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// ListDevices returns cached devices ordered by name, then ID.
func (r *Registry) ListDevices() []Device {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// CreateDevice validates and persists a new device, generating the ID and
// slug when they are empty.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Slug == "" {
		d.Slug = GenerateSlug(d.Name)
	}
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", d.ID, "name", d.Name)
	return nil
}

// CreateDeviceIfNotExists creates d unless a device with its ID is already
// registered. A slug clash with another light is resolved by suffixing the
// ID. It reports whether a device was created.
func (r *Registry) CreateDeviceIfNotExists(ctx context.Context, d *Device) (bool, error) {
	if d.ID != "" {
		if _, err := r.GetDevice(ctx, d.ID); err == nil {
			return false, nil
		} else if !errors.Is(err, ErrDeviceNotFound) {
			return false, err
		}
	}

	if d.Slug == "" {
		d.Slug = GenerateSlug(d.Name)
	}
	if r.slugTaken(d.Slug) {
		d.Slug = SuffixSlug(d.Slug, d.ID)
	}

	if err := r.CreateDevice(ctx, d); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) slugTaken(slug string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for _, d := range r.cache {
		if d.Slug == slug {
			return true
		}
	}
	return false
}

// SetDeviceState merges state into the device and records the resulting
// snapshot to history when history is enabled. History failures are
// logged, not returned.
func (r *Registry) SetDeviceState(ctx context.Context, id string, state State) error {
	if err := ValidateState(state); err != nil {
		return err
	}
	if err := r.repo.UpdateState(ctx, id, state); err != nil {
		return err
	}

	now := time.Now().UTC()
	var snapshot State

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		if updated.State == nil {
			updated.State = State{}
		}
		for k, v := range state {
			updated.State[k] = deepCopyValue(v)
		}
		updated.StateUpdatedAt = &now
		r.cache[id] = updated
		snapshot = deepCopyMap(updated.State)
	}
	r.cacheMu.Unlock()

	if snapshot == nil {
		snapshot = deepCopyMap(state)
	}
	if r.history != nil {
		if err := r.history.RecordStateChange(ctx, id, snapshot, StateHistorySourceBridge); err != nil {
			r.logger.Warn("recording state history failed", "id", id, "error", err)
		}
	}

	r.logger.Debug("device state updated", "id", id)
	return nil
}

// SetDeviceHealth updates the health status and last seen time.
func (r *Registry) SetDeviceHealth(ctx context.Context, id string, status HealthStatus) error {
	if err := ValidateHealthStatus(status); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := r.repo.UpdateHealth(ctx, id, status, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.HealthLastSeen = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device health updated", "id", id, "status", status)
	return nil
}

// StateHistory returns recorded state changes for id, newest first.
// It returns ErrDeviceNotFound for unknown devices and an empty slice when
// history is disabled.
func (r *Registry) StateHistory(ctx context.Context, id string, limit int) ([]StateHistoryEntry, error) {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return nil, err
	}
	if r.history == nil {
		return []StateHistoryEntry{}, nil
	}
	return r.history.GetHistory(ctx, id, limit)
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
