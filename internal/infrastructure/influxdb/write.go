package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/techscire/scirecount-core/internal/device"
)

// MeasurementOccupancy is the measurement every reading is written to.
const MeasurementOccupancy = "occupancy"

// WriteReading writes one stored reading as an occupancy point.
//
// The point is tagged with device_id and model and carries in, out and
// occupancy fields. The write is non-blocking; data is batched and sent
// asynchronously, and failures reach the SetOnError callback.
func (c *Client) WriteReading(d device.Device, r device.Reading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(d, r))
}

// readingPoint builds the point for a reading. A zero reading timestamp
// falls back to the device's last update.
func readingPoint(d device.Device, r device.Reading) *write.Point {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = d.LastUpdate
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{"device_id": r.DeviceID}
	if d.Model != "" {
		tags["model"] = d.Model
	}

	return write.NewPoint(
		MeasurementOccupancy,
		tags,
		map[string]interface{}{
			"in":        int64(r.InCount),
			"out":       int64(r.OutCount),
			"occupancy": int64(r.Occupancy),
		},
		ts,
	)
}
