// Package metrics exposes SciReCount Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scirecount"

// Collector holds the ingest and fan-out metrics.
type Collector struct {
	registry *prometheus.Registry

	readings        *prometheus.CounterVec
	devicesCreated  prometheus.Counter
	ingestDuration  *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
	observers       prometheus.Gauge
	devices         prometheus.Gauge
	mqttMessages    *prometheus.CounterVec
	telemetryErrors prometheus.Counter
}

// New creates a Collector on its own registry, which also carries the Go
// runtime and process collectors. siteID is attached as a constant label.
func New(siteID string) *Collector {
	constLabels := prometheus.Labels{"site": siteID}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "readings_total",
			Help:        "Sensor readings processed, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		devicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "devices_created_total",
			Help:        "Devices registered from a first reading.",
			ConstLabels: constLabels,
		}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "ingest_duration_seconds",
			Help:        "Time from payload receipt to broadcast, by outcome.",
			Buckets:     []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "snapshot_deliveries_total",
			Help:        "Snapshot deliveries to observers, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "observers",
			Help:        "Currently subscribed snapshot observers.",
			ConstLabels: constLabels,
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "devices",
			Help:        "Devices in the registry.",
			ConstLabels: constLabels,
		}),
		mqttMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "mqtt_messages_total",
			Help:        "MQTT messages handled, by direction and result.",
			ConstLabels: constLabels,
		}, []string{"direction", "result"}),
		telemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "telemetry_write_errors_total",
			Help:        "Asynchronous InfluxDB write failures.",
			ConstLabels: constLabels,
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.readings,
		c.devicesCreated,
		c.ingestDuration,
		c.deliveries,
		c.observers,
		c.devices,
		c.mqttMessages,
		c.telemetryErrors,
	)
	return c
}

// IngestObserved records one ingest attempt.
func (c *Collector) IngestObserved(outcome string, created bool, elapsed time.Duration) {
	c.readings.WithLabelValues(outcome).Inc()
	c.ingestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if created {
		c.devicesCreated.Inc()
	}
}

// DeliveryObserved records one snapshot delivery attempt.
func (c *Collector) DeliveryObserved(result string) {
	c.deliveries.WithLabelValues(result).Inc()
}

// ObserversChanged sets the observer gauge.
func (c *Collector) ObserversChanged(count int) {
	c.observers.Set(float64(count))
}

// SetDeviceCount sets the device gauge.
func (c *Collector) SetDeviceCount(count int) {
	c.devices.Set(float64(count))
}

// MQTTMessage records an MQTT message. direction is "in" or "out".
func (c *Collector) MQTTMessage(direction string, ok bool) {
	c.mqttMessages.WithLabelValues(direction, strconv.FormatBool(ok)).Inc()
}

// TelemetryError records a failed InfluxDB batch write.
func (c *Collector) TelemetryError() {
	c.telemetryErrors.Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
