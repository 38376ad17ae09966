package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/techscire/scirecount-core/internal/device"
)

// Source lists the devices a snapshot is built from.
type Source interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// Metrics records delivery outcomes.
type Metrics interface {
	DeliveryObserved(result string)
	ObserversChanged(count int)
}

// Delivery results passed to Metrics.
const (
	ResultDelivered = "delivered"
	ResultBusy      = "busy"
	ResultClosed    = "closed"
	ResultError     = "error"
)

// Logger defines the logging interface used by the Broadcaster.
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

// Broadcaster pushes snapshots to subscribed observers.
//
// Subscribe, Unsubscribe and Publish share one mutex, so an observer sees
// snapshots in the order they were built and a new subscriber's initial
// snapshot is never older than the next publish it receives.
type Broadcaster struct {
	mu        sync.Mutex
	source    Source
	observers map[string]Observer
	seq       uint64

	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// New creates a broadcaster reading devices from source.
func New(source Source) *Broadcaster {
	return &Broadcaster{
		source:    source,
		observers: make(map[string]Observer),
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the broadcaster.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// SetMetrics sets the metrics recorder.
func (b *Broadcaster) SetMetrics(m Metrics) {
	b.metrics = m
}

// Subscribe registers obs and delivers the current snapshot to it alone.
// An observer with an ID already registered replaces the old one.
func (b *Broadcaster) Subscribe(ctx context.Context, obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observers[obs.ID()] = obs
	b.observersChanged()
	b.logger.Debug("observer subscribed", "observer_id", obs.ID(), "observers", len(b.observers))

	snapshot, err := b.build(ctx)
	if err != nil {
		b.logger.Error("building initial snapshot", "observer_id", obs.ID(), "error", err)
		return
	}
	b.deliver(obs, snapshot)
}

// Unsubscribe removes the observer with the given ID. Unknown IDs are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[id]; !ok {
		return
	}
	delete(b.observers, id)
	b.observersChanged()
	b.logger.Debug("observer unsubscribed", "observer_id", id, "observers", len(b.observers))
}

// Publish builds a snapshot and delivers it to every observer. Delivery
// failures are logged and counted, never returned. Observers that report
// ErrObserverClosed are dropped.
func (b *Broadcaster) Publish(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot, err := b.build(ctx)
	if err != nil {
		b.logger.Error("building snapshot", "error", err)
		return
	}
	for id, obs := range b.observers {
		if b.deliver(obs, snapshot) == ResultClosed {
			delete(b.observers, id)
			b.observersChanged()
		}
	}
}

// Snapshot returns the current device list without delivering it.
func (b *Broadcaster) Snapshot(ctx context.Context) ([]Entry, error) {
	devices, err := b.source.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	return Entries(devices), nil
}

// ObserverCount returns the number of subscribed observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

func (b *Broadcaster) build(ctx context.Context) (Snapshot, error) {
	devices, err := b.source.ListDevices(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	b.seq++
	return Snapshot{
		Seq:         b.seq,
		GeneratedAt: b.now().UTC(),
		Devices:     Entries(devices),
	}, nil
}

func (b *Broadcaster) deliver(obs Observer, snapshot Snapshot) string {
	result := ResultDelivered
	if err := obs.Deliver(snapshot); err != nil {
		switch {
		case errors.Is(err, ErrObserverBusy):
			result = ResultBusy
		case errors.Is(err, ErrObserverClosed):
			result = ResultClosed
		default:
			result = ResultError
		}
		b.logger.Warn("snapshot not delivered",
			"observer_id", obs.ID(),
			"seq", snapshot.Seq,
			"error", err,
		)
	}
	if b.metrics != nil {
		b.metrics.DeliveryObserved(result)
	}
	return result
}

func (b *Broadcaster) observersChanged() {
	if b.metrics != nil {
		b.metrics.ObserversChanged(len(b.observers))
	}
}
