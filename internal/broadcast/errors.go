package broadcast

import "errors"

var (
	// ErrObserverBusy is returned by Deliver when the observer's buffer is full.
	ErrObserverBusy = errors.New("broadcast: observer busy")

	// ErrObserverClosed is returned by Deliver after the observer has closed.
	ErrObserverClosed = errors.New("broadcast: observer closed")
)
