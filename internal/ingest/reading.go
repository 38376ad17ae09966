package ingest

import "time"

// DefaultFallbackDeviceID identifies readings that carry no device id and
// no MAC address.
const DefaultFallbackDeviceID = "TD2000-DEFAULT"

// Reading is a sensor payload in canonical form.
type Reading struct {
	DeviceID string
	In       int
	Out      int

	// Occupancy is the payload's occupancy when OccupancyExplicit is set,
	// otherwise max(0, In-Out).
	Occupancy         int
	OccupancyExplicit bool

	// Name and Model are optional; they only apply when the device is new.
	Name  string
	Model string

	// Timestamp is the sensor-supplied time, zero when absent or unparseable.
	Timestamp time.Time
}

func derivedOccupancy(in, out int) int {
	return max(0, in-out)
}
