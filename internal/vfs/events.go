package vfs

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/logging"
)

// EventKind is the closed set of change and sync notifications.
type EventKind uint8

const (
	EventCreated EventKind = iota + 1
	EventModified
	EventDeleted
	EventRenamed
	EventSynced
	EventSyncFailed
	EventUpdatedFromRemote
	EventConflictResolved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	case EventSynced:
		return "synced"
	case EventSyncFailed:
		return "sync_failed"
	case EventUpdatedFromRemote:
		return "updated_from_remote"
	case EventConflictResolved:
		return "conflict_resolved"
	default:
		return "unknown"
	}
}

// Disposition names the outcome of a conflict resolution.
type Disposition string

const (
	LocalWins  Disposition = "local-wins"
	RemoteWins Disposition = "remote-wins"
	Merged     Disposition = "merged"
)

// Conflict carries both prior versions of a resolved conflict so losing data
// is reported, never silently discarded.
type Conflict struct {
	Disposition Disposition
	Local       *Node
	Remote      *Node
}

// Event is delivered to observers on every tree change and sync transition.
// Node is a snapshot and is nil for deletions and sync failures.
type Event struct {
	Kind     EventKind
	Path     string
	OldPath  string // Renamed only
	Node     *Node
	Err      error     // SyncFailed only
	Conflict *Conflict // ConflictResolved only
}

// Handle identifies one observer subscription.
type Handle string

// Observer receives events. Callbacks are synchronous and fire-and-forget;
// panics are recovered and logged, never propagated into the tree.
type Observer func(Event)

// Registry is the shared observer mechanism used by the tree and the sync
// queue.
type Registry struct {
	mu        sync.RWMutex
	observers map[Handle]Observer
	log       *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{observers: make(map[Handle]Observer), log: log}
}

// Subscribe registers an observer and returns its handle.
func (r *Registry) Subscribe(fn Observer) Handle {
	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.observers[h] = fn
	r.mu.Unlock()
	return h
}

// Unsubscribe removes the observer for the handle, if any.
func (r *Registry) Unsubscribe(h Handle) {
	r.mu.Lock()
	delete(r.observers, h)
	r.mu.Unlock()
}

// Publish delivers ev to all observers.
func (r *Registry) Publish(ev Event) {
	r.mu.RLock()
	observers := make([]Observer, 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.RUnlock()

	for _, fn := range observers {
		r.deliver(fn, ev)
	}
}

func (r *Registry) deliver(fn Observer, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("observer panicked",
				zap.String("event", ev.Kind.String()),
				zap.String("path", ev.Path),
				zap.Any("panic", rec),
			)
		}
	}()
	fn(ev)
}
