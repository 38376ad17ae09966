package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/ingest"
)

// BridgeObserverID is the broadcast observer ID used by the snapshot publisher.
const BridgeObserverID = "mqtt:" + TopicPrefixCore + "/devices"

// snapshotBuffer is how many snapshots may queue behind a slow broker.
// The topic is retained, so only the newest one matters.
const snapshotBuffer = 4

// Message directions passed to BridgeMetrics.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Bus is the part of *Client the bridge needs.
type Bus interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Ingester consumes raw sensor payloads.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, hint string) (ingest.Ack, error)
}

// SnapshotSource is the part of broadcast.Broadcaster the bridge needs.
type SnapshotSource interface {
	Subscribe(ctx context.Context, obs broadcast.Observer)
	Unsubscribe(id string)
}

// BridgeMetrics counts MQTT traffic.
type BridgeMetrics interface {
	MQTTMessage(direction string, ok bool)
}

// snapshotMessage is the retained payload on scirecount/core/devices.
type snapshotMessage struct {
	Seq         uint64            `json:"seq"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Devices     []broadcast.Entry `json:"devices"`
}

// Bridge connects the broker to the ingestion pipeline.
//
// Inbound, every message on scirecount/sensors/{deviceId}/reading is passed
// to the Ingester with {deviceId} as the identity hint. Outbound, the
// bridge is a broadcast observer that republishes each snapshot, retained,
// on scirecount/core/devices.
type Bridge struct {
	bus      Bus
	ingester Ingester
	qos      byte
	metrics  BridgeMetrics
	logger   Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	source   SnapshotSource
	observer *broadcast.ChannelObserver
	done     chan struct{}
}

// NewBridge creates a bridge. It does nothing until Start.
func NewBridge(bus Bus, ingester Ingester, qos byte) *Bridge {
	return &Bridge{bus: bus, ingester: ingester, qos: qos}
}

// SetMetrics sets the traffic counter.
func (b *Bridge) SetMetrics(m BridgeMetrics) {
	b.metrics = m
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to sensor readings and, when source is non-nil, begins
// publishing snapshots. The subscription lives until Stop or ctx ends.
func (b *Bridge) Start(ctx context.Context, source SnapshotSource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return fmt.Errorf("mqtt bridge already started")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.bus.Subscribe(Topics{}.AllSensorReadings(), b.qos, b.handleReading); err != nil {
		b.cancel()
		b.cancel = nil
		return fmt.Errorf("subscribing to sensor readings: %w", err)
	}

	if source != nil {
		b.source = source
		b.observer = broadcast.NewChannelObserver(BridgeObserverID, snapshotBuffer)
		b.done = make(chan struct{})
		go b.publishLoop(b.observer, b.done)
		source.Subscribe(b.ctx, b.observer)

		go func() {
			<-b.ctx.Done()
			b.detach()
		}()
	}

	b.logInfo("mqtt bridge started", "topic", Topics{}.AllSensorReadings())
	return nil
}

// Stop detaches from the broadcaster and waits for the publisher to drain.
// It is safe to call more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.detach()
	if done != nil {
		<-done
	}
}

func (b *Bridge) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.observer == nil {
		return
	}
	b.source.Unsubscribe(b.observer.ID())
	b.observer.Close()
	b.observer = nil
}

// handleReading is the MessageHandler for sensor reading topics.
func (b *Bridge) handleReading(topic string, payload []byte) error {
	hint, ok := SensorIDFromTopic(topic)
	if !ok {
		b.count(DirectionIn, false)
		return fmt.Errorf("unexpected sensor topic %q", topic)
	}

	ack, err := b.ingester.Ingest(b.context(), payload, hint)
	b.count(DirectionIn, err == nil)
	if err != nil {
		return fmt.Errorf("ingesting reading for %s: %w", ack.DeviceID, err)
	}
	b.logDebug("mqtt reading ingested", "device_id", ack.DeviceID, "created", ack.Created)
	return nil
}

// publishLoop publishes snapshots until the observer is closed.
func (b *Bridge) publishLoop(obs *broadcast.ChannelObserver, done chan<- struct{}) {
	defer close(done)

	for snapshot := range obs.C() {
		devices := snapshot.Devices
		if devices == nil {
			devices = []broadcast.Entry{}
		}
		data, err := json.Marshal(snapshotMessage{
			Seq:         snapshot.Seq,
			GeneratedAt: snapshot.GeneratedAt,
			Devices:     devices,
		})
		if err != nil {
			b.count(DirectionOut, false)
			b.logWarn("encoding snapshot for MQTT", "error", err)
			continue
		}
		err = b.bus.Publish(Topics{}.CoreDevices(), data, b.qos, true)
		b.count(DirectionOut, err == nil)
		if err != nil {
			b.logWarn("publishing snapshot", "seq", snapshot.Seq, "error", err)
		}
	}
}

func (b *Bridge) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Bridge) count(direction string, ok bool) {
	if b.metrics != nil {
		b.metrics.MQTTMessage(direction, ok)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
