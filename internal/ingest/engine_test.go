package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/techscire/scirecount-core/internal/device"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/database"
	_ "github.com/techscire/scirecount-core/migrations"
)

type countingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPublisher) Publish(context.Context) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type failingHistory struct{ err error }

func (f failingHistory) Append(context.Context, *device.Reading) error { return f.err }

type failingStore struct{ err error }

func (f failingStore) GetDevice(context.Context, string) (*device.Device, error) {
	return nil, f.err
}
func (f failingStore) CreateDevice(context.Context, *device.Device) error { return f.err }
func (f failingStore) UpdateDevice(context.Context, *device.Device) error { return f.err }

// hangupStore cancels the caller's context once a device write commits.
type hangupStore struct {
	DeviceStore
	cancel context.CancelFunc
}

func (h hangupStore) CreateDevice(ctx context.Context, d *device.Device) error {
	err := h.DeviceStore.CreateDevice(ctx, d)
	h.cancel()
	return err
}

func (h hangupStore) UpdateDevice(ctx context.Context, d *device.Device) error {
	err := h.DeviceStore.UpdateDevice(ctx, d)
	h.cancel()
	return err
}

type recordedOutcome struct {
	outcome string
	created bool
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (m *fakeMetrics) IngestObserved(outcome string, created bool, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, recordedOutcome{outcome, created})
	m.mu.Unlock()
}

type testEnv struct {
	registry  *device.Registry
	history   *device.SQLiteHistoryRepository
	engine    *Engine
	publisher *countingPublisher
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "ingest.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	history := device.NewSQLiteHistoryRepository(db.DB)

	engine := NewEngine(registry, history, opts)
	publisher := &countingPublisher{}
	engine.SetPublisher(publisher)

	return &testEnv{registry: registry, history: history, engine: engine, publisher: publisher}
}

func (env *testEnv) ingest(t *testing.T, payload string) Ack {
	t.Helper()
	ack, err := env.engine.Ingest(context.Background(), []byte(payload), "")
	if err != nil {
		t.Fatalf("Ingest(%s) error = %v", payload, err)
	}
	return ack
}

func TestEngine_Ingest_NewDevice(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	ack := env.ingest(t, `{"deviceId":"X1","in":10,"out":4}`)
	if ack.Status != AckSuccess || !ack.Created || ack.DeviceID != "X1" {
		t.Errorf("ack = %+v, want success/created/X1", ack)
	}

	d, err := env.registry.GetDevice(ctx, "X1")
	if err != nil {
		t.Fatalf("GetDevice(X1) error = %v", err)
	}
	if d.LastIn != 10 || d.LastOut != 4 || d.CurrentOccupancy != 6 || d.Status != device.StatusOnline {
		t.Errorf("device = %+v, want in=10 out=4 occupancy=6 online", d)
	}
	if d.Name != "New Sensor TD2000" || d.Model != "TD2000" {
		t.Errorf("Name/Model = %q/%q, want defaults", d.Name, d.Model)
	}

	readings, err := env.history.Query(ctx, device.HistoryFilter{DeviceID: "X1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("history rows = %d, want 1", len(readings))
	}
	r := readings[0]
	if r.InCount != 10 || r.OutCount != 4 || r.Occupancy != 6 {
		t.Errorf("reading = %+v, want 10/4/6", r)
	}

	if env.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", env.publisher.count())
	}
}

func TestEngine_Ingest_PayloadNameAndModel(t *testing.T) {
	env := newTestEnv(t, Options{DefaultDeviceName: "Unnamed", DefaultModel: "VS135"})

	env.ingest(t, `{"deviceId":"A","deviceName":"Front Door"}`)
	env.ingest(t, `{"deviceId":"B"}`)

	a, _ := env.registry.GetDevice(context.Background(), "A")
	b, _ := env.registry.GetDevice(context.Background(), "B")
	if a.Name != "Front Door" || a.Model != "VS135" {
		t.Errorf("A = %q/%q", a.Name, a.Model)
	}
	if b.Name != "Unnamed" {
		t.Errorf("B.Name = %q, want configured default", b.Name)
	}
}

func TestEngine_Ingest_SecondReadingUpdates(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	first := env.ingest(t, `{"deviceId":"TD","in":5,"out":1}`)
	second := env.ingest(t, `{"deviceId":"TD","in":40,"out":45}`)

	if !first.Created || second.Created {
		t.Errorf("created flags = %v/%v, want true/false", first.Created, second.Created)
	}

	devices, err := env.registry.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	if devices[0].LastIn != 40 || devices[0].CurrentOccupancy != 0 {
		t.Errorf("device = %+v, want replaced counters and occupancy 0", devices[0])
	}
}

func TestEngine_Ingest_ExplicitNegativeOccupancy(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.ingest(t, `{"deviceId":"TD","in":1,"out":1}`)
	env.ingest(t, `{"deviceId":"TD","in":100,"out":0,"occupancy":-150}`)

	d, _ := env.registry.GetDevice(ctx, "TD")
	if d.CurrentOccupancy != -150 {
		t.Errorf("CurrentOccupancy = %d, want -150", d.CurrentOccupancy)
	}
	readings, _ := env.history.Query(ctx, device.HistoryFilter{DeviceID: "TD", Limit: 1})
	if readings[0].Occupancy != -150 {
		t.Errorf("history occupancy = %d, want -150", readings[0].Occupancy)
	}
}

func TestEngine_Ingest_AddMode(t *testing.T) {
	env := newTestEnv(t, Options{CounterMode: config.CounterModeAdd})

	env.ingest(t, `{"deviceId":"TD","in":10,"out":2}`)
	env.ingest(t, `{"deviceId":"TD","in":5,"out":9}`)

	d, _ := env.registry.GetDevice(context.Background(), "TD")
	if d.LastIn != 15 || d.LastOut != 11 || d.CurrentOccupancy != 4 {
		t.Errorf("device = in %d out %d occ %d, want 15/11/4", d.LastIn, d.LastOut, d.CurrentOccupancy)
	}

	readings, _ := env.history.Query(context.Background(), device.HistoryFilter{DeviceID: "TD"})
	if readings[0].InCount != 5 || readings[0].OutCount != 9 {
		t.Errorf("history stores counts as received, got %d/%d", readings[0].InCount, readings[0].OutCount)
	}
}

func TestEngine_Ingest_HistoryGrowsInOrder(t *testing.T) {
	env := newTestEnv(t, Options{})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	env.engine.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	const n = 12
	for i := 1; i <= n; i++ {
		if _, err := env.engine.IngestReading(context.Background(), Reading{DeviceID: "TD", In: i, Occupancy: i}); err != nil {
			t.Fatalf("IngestReading(%d) error = %v", i, err)
		}
	}

	readings, err := env.history.Query(context.Background(), device.HistoryFilter{DeviceID: "TD"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(readings) != n {
		t.Fatalf("history rows = %d, want %d", len(readings), n)
	}
	// Query is newest first; walking backwards gives ascending order.
	for i := 0; i < n; i++ {
		if got := readings[n-1-i].InCount; got != i+1 {
			t.Errorf("ascending[%d].InCount = %d, want %d", i, got, i+1)
		}
	}
}

func TestEngine_Ingest_SensorTimestamp(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.ingest(t, `{"deviceId":"TD","in":1,"timestamp":"2025-12-24T18:00:00Z"}`)

	readings, _ := env.history.Query(context.Background(), device.HistoryFilter{DeviceID: "TD"})
	want := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	if !readings[0].Timestamp.Equal(want) {
		t.Errorf("reading timestamp = %v, want sensor time %v", readings[0].Timestamp, want)
	}
}

func TestEngine_Ingest_HistoryFailureIsPartial(t *testing.T) {
	env := newTestEnv(t, Options{})
	metrics := &fakeMetrics{}
	engine := NewEngine(env.registry, failingHistory{err: errors.New("disk full")}, Options{})
	engine.SetPublisher(env.publisher)
	engine.SetMetrics(metrics)

	ack, err := engine.Ingest(context.Background(), []byte(`{"deviceId":"TD","in":3}`), "")

	var sf *StorageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("error = %v, want *StorageFailure", err)
	}
	if sf.Stage != StageHistory || !sf.Partial() {
		t.Errorf("stage = %s partial = %v, want history/true", sf.Stage, sf.Partial())
	}
	if ack.Status != AckError || ack.DeviceID != "TD" || !ack.Created {
		t.Errorf("ack = %+v", ack)
	}
	if env.publisher.count() != 0 {
		t.Error("partial failure must not broadcast")
	}
	if _, err := env.registry.GetDevice(context.Background(), "TD"); err != nil {
		t.Errorf("device row should be committed: %v", err)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0].outcome != OutcomePartial {
		t.Errorf("metrics = %+v, want one partial outcome", metrics.outcomes)
	}
}

func TestEngine_Ingest_CallerCancelDoesNotSplitWrites(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.ingest(t, `{"deviceId":"X1","in":10,"out":4}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewEngine(hangupStore{DeviceStore: env.registry, cancel: cancel}, env.history, Options{})
	engine.SetPublisher(env.publisher)

	if _, err := engine.Ingest(ctx, []byte(`{"deviceId":"X1","in":20,"out":5}`), ""); err != nil {
		t.Fatalf("Ingest() error = %v, want nil after caller cancel", err)
	}
	if ctx.Err() == nil {
		t.Fatal("caller context was not cancelled mid-ingest")
	}

	d, err := env.registry.GetDevice(context.Background(), "X1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.LastIn != 20 {
		t.Errorf("LastIn = %d, want 20", d.LastIn)
	}
	readings, err := env.history.Query(context.Background(), device.HistoryFilter{DeviceID: "X1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(readings) != 2 || readings[0].InCount != 20 {
		t.Errorf("history = %+v, want 2 rows with the newest in=20", readings)
	}
	if env.publisher.count() != 2 {
		t.Errorf("publishes = %d, want 2", env.publisher.count())
	}
}

func TestEngine_Ingest_DeviceFailure(t *testing.T) {
	publisher := &countingPublisher{}
	engine := NewEngine(failingStore{err: errors.New("locked")}, failingHistory{}, Options{})
	engine.SetPublisher(publisher)

	_, err := engine.Ingest(context.Background(), []byte(`{"deviceId":"TD"}`), "")

	var sf *StorageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("error = %v, want *StorageFailure", err)
	}
	if sf.Stage != StageDevice || sf.Partial() {
		t.Errorf("stage = %s partial = %v, want device/false", sf.Stage, sf.Partial())
	}
	if publisher.count() != 0 {
		t.Error("device failure must not broadcast")
	}
}

func TestEngine_Ingest_Concurrent(t *testing.T) {
	env := newTestEnv(t, Options{CounterMode: config.CounterModeAdd})

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := env.engine.Ingest(context.Background(), []byte(`{"deviceId":"TD","in":1}`), ""); err != nil {
					t.Errorf("Ingest() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	d, _ := env.registry.GetDevice(context.Background(), "TD")
	if d.LastIn != workers*perWorker {
		t.Errorf("LastIn = %d, want %d (no lost updates)", d.LastIn, workers*perWorker)
	}
	if env.publisher.count() != workers*perWorker {
		t.Errorf("publish calls = %d, want %d", env.publisher.count(), workers*perWorker)
	}
}

func TestStorageFailure_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StorageFailure{Stage: StageDevice, DeviceID: "TD", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("StorageFailure should unwrap to its cause")
	}
}
