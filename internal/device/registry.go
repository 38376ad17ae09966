package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
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

// Registry wraps a Repository with an in-memory cache of every device.
//
// The cache is loaded by RefreshCache on startup and kept in step by
// CreateDevice and UpdateDevice, which write through to the repository
// before touching the cache. All methods are safe for concurrent use;
// returned devices are copies.
type Registry struct {
	repo    Repository
	cache   map[string]Device
	loaded  bool
	cacheMu sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]Device),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	cache := make(map[string]Device, len(devices))
	for _, d := range devices {
		cache[d.DeviceID] = d
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.loaded = true
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns the device with the given ID or ErrDeviceNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	loaded := r.loaded
	r.cacheMu.RUnlock()

	if ok {
		return &cached, nil
	}
	if loaded {
		return nil, ErrDeviceNotFound
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = *d
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices returns every device ordered by creation time, then ID.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if !r.loaded {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, d)
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if !devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].CreatedAt.Before(devices[j].CreatedAt)
		}
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices, nil
}

// CreateDevice validates and persists a new device, stamping CreatedAt
// and UpdatedAt.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := r.now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.LastUpdate.IsZero() {
		d.LastUpdate = now
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.DeviceID] = *d
	r.cacheMu.Unlock()

	r.logger.Info("device created", "device_id", d.DeviceID, "name", d.Name)
	return nil
}

// UpdateDevice validates and persists changes to an existing device,
// stamping UpdatedAt.
func (r *Registry) UpdateDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	d.UpdatedAt = r.now().UTC()

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.DeviceID] = *d
	r.cacheMu.Unlock()

	r.logger.Debug("device updated", "device_id", d.DeviceID)
	return nil
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
