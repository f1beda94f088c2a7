package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	reg := NewRegistry(nil)

	var got []EventKind
	h := reg.Subscribe(func(ev Event) { got = append(got, ev.Kind) })
	reg.Publish(Event{Kind: EventCreated, Path: "/a"})
	reg.Publish(Event{Kind: EventModified, Path: "/a"})

	reg.Unsubscribe(h)
	reg.Publish(Event{Kind: EventDeleted, Path: "/a"})

	assert.Equal(t, []EventKind{EventCreated, EventModified}, got)
}

func TestRegistryRecoversPanickingObserver(t *testing.T) {
	reg := NewRegistry(nil)

	reg.Subscribe(func(Event) { panic("boom") })
	var delivered int
	reg.Subscribe(func(Event) { delivered++ })

	assert.NotPanics(t, func() {
		reg.Publish(Event{Kind: EventCreated, Path: "/a"})
	})
	assert.Equal(t, 1, delivered, "surviving observers still notified")
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		EventCreated:           "created",
		EventModified:          "modified",
		EventDeleted:           "deleted",
		EventRenamed:           "renamed",
		EventSynced:            "synced",
		EventSyncFailed:        "sync_failed",
		EventUpdatedFromRemote: "updated_from_remote",
		EventConflictResolved:  "conflict_resolved",
		EventKind(0):           "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestTreeEventsOnWrite(t *testing.T) {
	tree, _ := newTestTree(t)

	var events []Event
	tree.Subscribe(func(ev Event) { events = append(events, ev) })

	_, err := tree.CreateFile("/a.txt", []byte("x"))
	assert.NoError(t, err)

	// The file creation plus the parent directory update.
	assert.Len(t, events, 2)
	assert.Equal(t, EventCreated, events[0].Kind)
	assert.Equal(t, "/a.txt", events[0].Path)
	assert.NotNil(t, events[0].Node)
	assert.Equal(t, EventModified, events[1].Kind)
	assert.Equal(t, "/", events[1].Path)
}

func TestRenameEventCarriesOldPath(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateFile("/a.txt", nil)
	assert.NoError(t, err)

	var renamed []Event
	tree.Subscribe(func(ev Event) {
		if ev.Kind == EventRenamed {
			renamed = append(renamed, ev)
		}
	})

	assert.NoError(t, tree.Rename("/a.txt", "/b.txt"))
	assert.Len(t, renamed, 1)
	assert.Equal(t, "/b.txt", renamed[0].Path)
	assert.Equal(t, "/a.txt", renamed[0].OldPath)
}
