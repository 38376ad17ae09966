package broadcast

import "sync"

// Observer receives snapshots. Deliver must return promptly; an observer
// that cannot accept a snapshot right now returns ErrObserverBusy.
type Observer interface {
	ID() string
	Deliver(snapshot Snapshot) error
}

// ChannelObserver buffers snapshots in a channel drained by its owner.
type ChannelObserver struct {
	id     string
	ch     chan Snapshot
	mu     sync.RWMutex
	closed bool
}

// NewChannelObserver creates an observer with room for buffer snapshots.
func NewChannelObserver(id string, buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{id: id, ch: make(chan Snapshot, buffer)}
}

// ID returns the observer identifier.
func (o *ChannelObserver) ID() string {
	return o.id
}

// C returns the channel snapshots are delivered on. It is closed by Close.
func (o *ChannelObserver) C() <-chan Snapshot {
	return o.ch
}

// Deliver enqueues snapshot without blocking.
func (o *ChannelObserver) Deliver(snapshot Snapshot) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrObserverClosed
	}
	select {
	case o.ch <- snapshot:
		return nil
	default:
		return ErrObserverBusy
	}
}

// Close stops delivery and closes the channel. It is safe to call twice.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
