package ingest

import "fmt"

// Stage names the write that failed during reconciliation.
type Stage string

const (
	// StageDevice means the device record could not be read or written.
	// Nothing was persisted.
	StageDevice Stage = "device"

	// StageHistory means the device record was committed but the history
	// append failed, leaving the two out of step.
	StageHistory Stage = "history"
)

// StorageFailure is returned when persisting a reading fails.
//
//	var sf *ingest.StorageFailure
//	if errors.As(err, &sf) && sf.Partial() {
//	    // device row updated, history row missing
//	}
type StorageFailure struct {
	Stage    Stage
	DeviceID string
	Err      error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("ingest: storing %s for device %s: %v", e.Stage, e.DeviceID, e.Err)
}

func (e *StorageFailure) Unwrap() error {
	return e.Err
}

// Partial reports whether the device record was written before the failure.
func (e *StorageFailure) Partial() bool {
	return e.Stage == StageHistory
}
