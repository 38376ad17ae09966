package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // first reading for this sensor
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidStatus is returned for a status outside online/offline/maintenance.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidReading is returned when a reading cannot be stored.
	ErrInvalidReading = errors.New("device: invalid reading")
)
