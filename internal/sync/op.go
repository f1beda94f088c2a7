package sync

import (
	"time"
)

// OpKind distinguishes what a pending operation will do to the remote copy.
type OpKind uint8

const (
	// Upsert pushes the current local node to the remote store.
	Upsert OpKind = iota + 1
	// Remove propagates a local deletion to the remote store.
	Remove
)

func (k OpKind) String() string {
	if k == Remove {
		return "remove"
	}
	return "upsert"
}

type pathState uint8

const (
	stateIdle pathState = iota
	statePending
	stateInFlight
)

// operation is one pending reconciliation for a path. The payload itself is
// not captured here: the latest local state is read from the tree when the
// operation goes in flight, which is what coalescing requires.
type operation struct {
	kind       OpKind
	enqueuedAt time.Time
	attempts   int
	timer      *time.Timer
}

// entry is the per-path state machine cell. At most one operation is ever in
// flight per path; a follower queues exactly one operation behind it.
type entry struct {
	state      pathState
	op         *operation
	follower   *operation
	lastErr    error
	failedKind OpKind
}

// State describes a path's sync condition in status snapshots.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateInFlight State = "in_flight"
	StateError    State = "error"
)

// PathStatus is a read-only snapshot of one path's sync state.
type PathStatus struct {
	Path       string    `json:"path"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Summary is a read-only snapshot of the whole queue.
type Summary struct {
	Overall  State     `json:"overall"`
	Pending  int       `json:"pending"`
	InFlight int       `json:"in_flight"`
	Errors   int       `json:"errors"`
	LastSync time.Time `json:"last_sync,omitzero"`
}
