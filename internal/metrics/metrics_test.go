package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_IngestObserved(t *testing.T) {
	c := New("site-001")

	c.IngestObserved("success", true, 2*time.Millisecond)
	c.IngestObserved("success", false, time.Millisecond)
	c.IngestObserved("partial_failure", false, time.Millisecond)

	if got := testutil.ToFloat64(c.readings.WithLabelValues("success")); got != 2 {
		t.Errorf("readings{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.readings.WithLabelValues("partial_failure")); got != 1 {
		t.Errorf("readings{partial_failure} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.devicesCreated); got != 1 {
		t.Errorf("devices_created = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.ingestDuration); got != 2 {
		t.Errorf("ingest_duration series = %d, want 2", got)
	}
}

func TestCollector_Broadcast(t *testing.T) {
	c := New("site-001")

	c.DeliveryObserved("delivered")
	c.DeliveryObserved("delivered")
	c.DeliveryObserved("busy")
	c.ObserversChanged(3)
	c.ObserversChanged(2)
	c.SetDeviceCount(7)

	if got := testutil.ToFloat64(c.deliveries.WithLabelValues("delivered")); got != 2 {
		t.Errorf("deliveries{delivered} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.observers); got != 2 {
		t.Errorf("observers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.devices); got != 7 {
		t.Errorf("devices = %v, want 7", got)
	}
}

func TestCollector_MQTTAndTelemetry(t *testing.T) {
	c := New("site-001")

	c.MQTTMessage("in", true)
	c.MQTTMessage("out", false)
	c.TelemetryError()

	if got := testutil.ToFloat64(c.mqttMessages.WithLabelValues("in", "true")); got != 1 {
		t.Errorf("mqtt{in,true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.mqttMessages.WithLabelValues("out", "false")); got != 1 {
		t.Errorf("mqtt{out,false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.telemetryErrors); got != 1 {
		t.Errorf("telemetry errors = %v, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New("site-001")
	c.IngestObserved("success", true, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`scirecount_readings_total{outcome="success",site="site-001"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	a := New("a")
	b := New("b")
	a.DeliveryObserved("busy")

	if got := testutil.ToFloat64(b.deliveries.WithLabelValues("busy")); got != 0 {
		t.Errorf("collector b saw collector a's sample: %v", got)
	}
}
