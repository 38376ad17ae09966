package device

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the operational state of a sensor.
type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

// Field limits.
const (
	MaxDeviceIDLength = 128
	MaxNameLength     = 100
)

// Device is the durable record of one counting sensor.
//
// LastIn and LastOut are never negative. CurrentOccupancy is clamped at
// zero only when it is derived from the counters; an occupancy reported
// explicitly by the sensor is stored as received.
type Device struct {
	DeviceID         string    `json:"deviceId"`
	Name             string    `json:"name"`
	Status           Status    `json:"status"`
	Model            string    `json:"model"`
	LastIn           int       `json:"lastIn"`
	LastOut          int       `json:"lastOut"`
	CurrentOccupancy int       `json:"currentOccupancy"`
	LastUpdate       time.Time `json:"lastUpdate"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Validate checks the invariants a device must hold before it is stored.
func (d *Device) Validate() error {
	if d.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidDevice)
	}
	if len(d.DeviceID) > MaxDeviceIDLength {
		return fmt.Errorf("%w: device id exceeds %d bytes", ErrInvalidDevice, MaxDeviceIDLength)
	}
	if d.Name == "" || utf8.RuneCountInString(d.Name) > MaxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidDevice, MaxNameLength)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	if d.LastIn < 0 || d.LastOut < 0 {
		return fmt.Errorf("%w: counters must be non-negative (in=%d out=%d)", ErrInvalidDevice, d.LastIn, d.LastOut)
	}
	return nil
}

// Reading is one entry of the history log.
//
// InCount and OutCount are the values the sensor sent. Occupancy is the
// device's CurrentOccupancy after the reading was applied.
type Reading struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	InCount   int       `json:"inCount"`
	OutCount  int       `json:"outCount"`
	Occupancy int       `json:"occupancy"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryFilter narrows a history query.
//
// The time range is applied only when both Start and End are set; a
// single bound is ignored. Both bounds are inclusive.
type HistoryFilter struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

// HasRange reports whether the filter carries a complete time range.
func (f HistoryFilter) HasRange() bool {
	return f.Start != nil && f.End != nil
}
