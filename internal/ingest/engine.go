package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/techscire/scirecount-core/internal/device"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
)

// DeviceStore is the slice of device.Registry the engine writes through.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, d *device.Device) error
}

// HistoryAppender appends readings to the history log.
type HistoryAppender interface {
	Append(ctx context.Context, reading *device.Reading) error
}

// Publisher is notified after each fully persisted reading.
type Publisher interface {
	Publish(ctx context.Context)
}

// TelemetrySink receives a copy of each stored reading. Writes must not block.
type TelemetrySink interface {
	WriteReading(d device.Device, reading device.Reading)
}

// Metrics records ingest outcomes.
type Metrics interface {
	IngestObserved(outcome string, created bool, elapsed time.Duration)
}

// Outcome labels passed to Metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeDeviceFailure = "device_failure"
	OutcomePartial       = "partial_failure"
)

// storeTimeout bounds the device write and history append of one reading.
// They run detached from the caller's context, so a sensor hanging up or a
// shutdown cannot split the pair.
const storeTimeout = 30 * time.Second

// Logger defines the logging interface used by the Engine.
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

// Options configures reconciliation policy.
type Options struct {
	// CounterMode is config.CounterModeReplace (default) or config.CounterModeAdd.
	CounterMode       string
	FallbackDeviceID  string
	DefaultDeviceName string
	DefaultModel      string
}

// OptionsFromConfig maps the ingest config section to Options.
func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		CounterMode:       cfg.CounterMode,
		FallbackDeviceID:  cfg.FallbackDeviceID,
		DefaultDeviceName: cfg.DefaultDeviceName,
		DefaultModel:      cfg.DefaultModel,
	}
}

func (o Options) withDefaults() Options {
	if o.CounterMode == "" {
		o.CounterMode = config.CounterModeReplace
	}
	if o.FallbackDeviceID == "" {
		o.FallbackDeviceID = DefaultFallbackDeviceID
	}
	if o.DefaultDeviceName == "" {
		o.DefaultDeviceName = "New Sensor TD2000"
	}
	if o.DefaultModel == "" {
		o.DefaultModel = "TD2000"
	}
	return o
}

// Ack is the result of a single ingestion.
type Ack struct {
	Status   string
	DeviceID string
	Created  bool
	Device   device.Device
}

// Ack statuses.
const (
	AckSuccess = "success"
	AckError   = "error"
)

// Engine reconciles readings into the device registry and history log.
//
// The engine is the only writer of devices and readings. Every public
// method holds one engine-wide mutex for its whole duration, so readings
// are applied in arrival order and snapshots are published in
// reconciliation order.
type Engine struct {
	mu         sync.Mutex
	devices    DeviceStore
	history    HistoryAppender
	normalizer *Normalizer
	opts       Options

	publisher Publisher
	telemetry TelemetrySink
	metrics   Metrics
	logger    Logger
	now       func() time.Time
}

// NewEngine creates an engine writing through devices and history.
func NewEngine(devices DeviceStore, history HistoryAppender, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		devices:    devices,
		history:    history,
		normalizer: NewNormalizer(opts.FallbackDeviceID),
		opts:       opts,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetPublisher sets the broadcaster notified after each successful ingest.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetTelemetry sets an optional sink for stored readings.
func (e *Engine) SetTelemetry(t TelemetrySink) {
	e.telemetry = t
}

// SetMetrics sets the metrics recorder.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Normalizer returns the engine's payload normalizer.
func (e *Engine) Normalizer() *Normalizer {
	return e.normalizer
}

// Ingest normalizes raw, reconciles it and, when both writes succeed,
// publishes a snapshot. hint is an identity to use when the payload has
// neither deviceId nor mac; pass "" for none.
//
// A *StorageFailure suppresses the broadcast. The returned Ack carries
// the device id in every case.
func (e *Engine) Ingest(ctx context.Context, raw []byte, hint string) (Ack, error) {
	reading := e.normalizer.Normalize(raw, hint)
	return e.IngestReading(ctx, reading)
}

// IngestReading is Ingest for an already-normalized reading.
func (e *Engine) IngestReading(ctx context.Context, reading Reading) (Ack, error) {
	start := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := storeContext(ctx)
	defer cancel()

	d, created, err := e.reconcile(ctx, reading)
	if err != nil {
		outcome := OutcomeDeviceFailure
		var sf *StorageFailure
		if errors.As(err, &sf) && sf.Partial() {
			outcome = OutcomePartial
		}
		e.observe(outcome, created, start)
		e.logger.Error("reading not stored",
			"device_id", reading.DeviceID,
			"outcome", outcome,
			"error", err,
		)
		return Ack{Status: AckError, DeviceID: reading.DeviceID, Created: created}, err
	}

	if e.publisher != nil {
		e.publisher.Publish(ctx)
	}

	e.observe(OutcomeSuccess, created, start)
	e.logger.Debug("reading stored",
		"device_id", d.DeviceID,
		"created", created,
		"in", d.LastIn,
		"out", d.LastOut,
		"occupancy", d.CurrentOccupancy,
	)

	return Ack{Status: AckSuccess, DeviceID: d.DeviceID, Created: created, Device: *d}, nil
}

// Reconcile merges reading into the registry and appends it to the history
// log. It does not publish.
//
// A new device is created online with the reading's counters, the payload
// name or the default name, and the payload model or the default model.
// An existing device has its counters replaced or incremented according to
// the counter mode; occupancy is the explicit value when one was sent,
// otherwise max(0, lastIn-lastOut) of the resulting counters.
func (e *Engine) Reconcile(ctx context.Context, reading Reading) (*device.Device, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := storeContext(ctx)
	defer cancel()
	return e.reconcile(ctx, reading)
}

// storeContext keeps ctx's values but not its cancellation.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

func (e *Engine) reconcile(ctx context.Context, reading Reading) (*device.Device, bool, error) {
	now := e.now().UTC()

	d, created, err := e.upsertDevice(ctx, reading, now)
	if err != nil {
		return nil, false, &StorageFailure{Stage: StageDevice, DeviceID: reading.DeviceID, Err: err}
	}

	ts := reading.Timestamp
	if ts.IsZero() {
		ts = now
	}
	entry := device.Reading{
		DeviceID:  d.DeviceID,
		InCount:   reading.In,
		OutCount:  reading.Out,
		Occupancy: d.CurrentOccupancy,
		Timestamp: ts,
	}
	if err := e.history.Append(ctx, &entry); err != nil {
		return d, created, &StorageFailure{Stage: StageHistory, DeviceID: d.DeviceID, Err: err}
	}

	if e.telemetry != nil {
		e.telemetry.WriteReading(*d, entry)
	}
	return d, created, nil
}

func (e *Engine) upsertDevice(ctx context.Context, reading Reading, now time.Time) (*device.Device, bool, error) {
	existing, err := e.devices.GetDevice(ctx, reading.DeviceID)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		d := e.newDevice(reading, now)
		if err := e.devices.CreateDevice(ctx, d); err != nil {
			return nil, false, err
		}
		e.logger.Info("device registered", "device_id", d.DeviceID, "name", d.Name)
		return d, true, nil
	case err != nil:
		return nil, false, err
	}

	d := existing
	if e.opts.CounterMode == config.CounterModeAdd {
		d.LastIn += reading.In
		d.LastOut += reading.Out
	} else {
		d.LastIn = reading.In
		d.LastOut = reading.Out
	}
	if reading.OccupancyExplicit {
		d.CurrentOccupancy = reading.Occupancy
	} else {
		d.CurrentOccupancy = derivedOccupancy(d.LastIn, d.LastOut)
	}
	d.Status = device.StatusOnline
	d.LastUpdate = now

	if err := e.devices.UpdateDevice(ctx, d); err != nil {
		return nil, false, err
	}
	return d, false, nil
}

func (e *Engine) newDevice(reading Reading, now time.Time) *device.Device {
	name := reading.Name
	if name == "" {
		name = e.opts.DefaultDeviceName
	}
	model := reading.Model
	if model == "" {
		model = e.opts.DefaultModel
	}
	return &device.Device{
		DeviceID:         reading.DeviceID,
		Name:             name,
		Status:           device.StatusOnline,
		Model:            model,
		LastIn:           reading.In,
		LastOut:          reading.Out,
		CurrentOccupancy: reading.Occupancy,
		LastUpdate:       now,
	}
}

func (e *Engine) observe(outcome string, created bool, start time.Time) {
	if e.metrics != nil {
		e.metrics.IngestObserved(outcome, created, e.now().Sub(start))
	}
}
