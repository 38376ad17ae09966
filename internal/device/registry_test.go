package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository for registry tests.
type MockRepository struct {
	mu        sync.Mutex
	devices   map[string]Device
	listCalls int
	createErr error
	updateErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		return &d, nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.devices[d.DeviceID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.DeviceID] = *d
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.devices[d.DeviceID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[d.DeviceID] = *d
	return nil
}

func testDevice(id string) *Device {
	return &Device{
		DeviceID: id,
		Name:     "Sensor " + id,
		Status:   StatusOnline,
		Model:    "TD2000",
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["a"] = *testDevice("a")
	repo.devices["b"] = *testDevice("b")

	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if got := registry.DeviceCount(); got != 2 {
		t.Errorf("DeviceCount() = %d, want 2", got)
	}
}

func TestRegistry_GetDevice(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	repo.devices["a"] = *testDevice("a")

	t.Run("falls back to repository before refresh", func(t *testing.T) {
		registry := NewRegistry(repo)
		d, err := registry.GetDevice(ctx, "a")
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if d.DeviceID != "a" {
			t.Errorf("DeviceID = %q, want a", d.DeviceID)
		}
	})

	t.Run("not found after refresh", func(t *testing.T) {
		registry := NewRegistry(repo)
		if err := registry.RefreshCache(ctx); err != nil {
			t.Fatalf("RefreshCache() error = %v", err)
		}
		_, err := registry.GetDevice(ctx, "missing")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetDevice() error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("returned copy does not alias cache", func(t *testing.T) {
		registry := NewRegistry(repo)
		if err := registry.RefreshCache(ctx); err != nil {
			t.Fatalf("RefreshCache() error = %v", err)
		}
		d, _ := registry.GetDevice(ctx, "a")
		d.Name = "mutated"

		again, _ := registry.GetDevice(ctx, "a")
		if again.Name == "mutated" {
			t.Error("mutating a returned device changed the cache")
		}
	})
}

func TestRegistry_ListDevices_Order(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(NewMockRepository())
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	registry.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := registry.CreateDevice(ctx, testDevice(id)); err != nil {
			t.Fatalf("CreateDevice(%s) error = %v", id, err)
		}
	}

	devices, err := registry.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	if len(devices) != len(want) {
		t.Fatalf("len = %d, want %d", len(devices), len(want))
	}
	for i, id := range want {
		if devices[i].DeviceID != id {
			t.Errorf("devices[%d] = %q, want %q", i, devices[i].DeviceID, id)
		}
	}
}

func TestRegistry_CreateDevice(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		device  *Device
		repoErr error
		wantErr error
	}{
		{name: "valid", device: testDevice("ok")},
		{name: "empty id", device: testDevice(""), wantErr: ErrInvalidDevice},
		{name: "bad status", device: &Device{DeviceID: "x", Name: "x", Status: "broken"}, wantErr: ErrInvalidStatus},
		{name: "negative counter", device: &Device{DeviceID: "x", Name: "x", Status: StatusOnline, LastIn: -1}, wantErr: ErrInvalidDevice},
		{name: "repository failure", device: testDevice("fail"), repoErr: errors.New("disk full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockRepository()
			repo.createErr = tt.repoErr
			registry := NewRegistry(repo)

			err := registry.CreateDevice(ctx, tt.device)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateDevice() error = %v, want %v", err, tt.wantErr)
				}
			case tt.repoErr != nil:
				if err == nil {
					t.Error("CreateDevice() expected repository error")
				}
				if registry.DeviceCount() != 0 {
					t.Error("failed create must not populate the cache")
				}
			default:
				if err != nil {
					t.Fatalf("CreateDevice() error = %v", err)
				}
				if tt.device.CreatedAt.IsZero() || tt.device.LastUpdate.IsZero() {
					t.Error("CreateDevice() should stamp CreatedAt and LastUpdate")
				}
				if registry.DeviceCount() != 1 {
					t.Errorf("DeviceCount() = %d, want 1", registry.DeviceCount())
				}
			}
		})
	}
}

func TestRegistry_UpdateDevice(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	registry := NewRegistry(repo)

	d := testDevice("u")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	d.LastIn = 10
	d.LastOut = 4
	d.CurrentOccupancy = 6
	if err := registry.UpdateDevice(ctx, d); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}

	got, _ := registry.GetDevice(ctx, "u")
	if got.CurrentOccupancy != 6 {
		t.Errorf("CurrentOccupancy = %d, want 6", got.CurrentOccupancy)
	}

	repo.updateErr = errors.New("disk full")
	d.CurrentOccupancy = 99
	if err := registry.UpdateDevice(ctx, d); err == nil {
		t.Fatal("UpdateDevice() expected error")
	}
	got, _ = registry.GetDevice(ctx, "u")
	if got.CurrentOccupancy != 6 {
		t.Errorf("cache changed after failed update: occupancy = %d", got.CurrentOccupancy)
	}

	repo.updateErr = nil
	if err := registry.UpdateDevice(ctx, testDevice("ghost")); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateDevice(ghost) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(NewMockRepository())
	if err := registry.CreateDevice(ctx, testDevice("concurrent")); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.GetDevice(ctx, "concurrent") //nolint:errcheck // exercising locks
			registry.ListDevices(ctx)             //nolint:errcheck // exercising locks
		}()
		go func(n int) {
			defer wg.Done()
			d := testDevice("concurrent")
			d.LastIn = n
			registry.UpdateDevice(ctx, d) //nolint:errcheck // exercising locks
		}(i)
	}
	wg.Wait()

	if _, err := registry.GetDevice(ctx, "concurrent"); err != nil {
		t.Errorf("GetDevice() after concurrent access error = %v", err)
	}
}
