package broadcast

import (
	"time"

	"github.com/techscire/scirecount-core/internal/device"
)

// LineCrossing holds a device's in and out counters.
type LineCrossing struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// Entry is one device as shown on the dashboard.
type Entry struct {
	DeviceID     string       `json:"deviceId"`
	Name         string       `json:"name"`
	Status       string       `json:"status"`
	Model        string       `json:"model"`
	LineCrossing LineCrossing `json:"lineCrossing"`
	Occupancy    int          `json:"occupancy"`
	LastUpdate   time.Time    `json:"lastUpdate"`
}

// Snapshot is the device list at one point in time. Seq increases by one
// for every snapshot the broadcaster builds.
type Snapshot struct {
	Seq         uint64
	GeneratedAt time.Time
	Devices     []Entry
}

// EntryFromDevice converts a device record to its display form.
func EntryFromDevice(d device.Device) Entry {
	return Entry{
		DeviceID:     d.DeviceID,
		Name:         d.Name,
		Status:       string(d.Status),
		Model:        d.Model,
		LineCrossing: LineCrossing{In: d.LastIn, Out: d.LastOut},
		Occupancy:    d.CurrentOccupancy,
		LastUpdate:   d.LastUpdate,
	}
}

// Entries converts devices, keeping their order. The result is never nil.
func Entries(devices []device.Device) []Entry {
	entries := make([]Entry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, EntryFromDevice(d))
	}
	return entries
}
