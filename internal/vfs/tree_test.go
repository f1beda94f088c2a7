package vfs

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrusfs/cirrus/internal/shared/paths"
	"github.com/cirrusfs/cirrus/internal/storage"
)

func newTestTree(t *testing.T) (*Tree, *storage.Memory) {
	t.Helper()
	backend := storage.NewMemory()
	tree, err := New(backend)
	require.NoError(t, err)
	return tree, backend
}

// checkInvariants asserts the structural guarantees: unique paths, every
// non-root node's parent is a directory listing it, and child-sets match the
// actual path set.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	nodes := tree.Snapshot()
	byPath := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		_, dup := byPath[n.Path]
		require.False(t, dup, "duplicate path %s", n.Path)
		byPath[n.Path] = n
	}

	root, ok := byPath[paths.Root]
	require.True(t, ok, "missing root")
	require.True(t, root.IsDir())

	for _, n := range nodes {
		if paths.IsRoot(n.Path) {
			continue
		}
		parent, ok := byPath[paths.Parent(n.Path)]
		require.True(t, ok, "missing parent of %s", n.Path)
		require.True(t, parent.IsDir(), "parent of %s is not a directory", n.Path)
		_, listed := parent.Children[paths.Base(n.Path)]
		require.True(t, listed, "%s not listed in parent", n.Path)
	}
	for _, n := range nodes {
		if !n.IsDir() {
			continue
		}
		for name := range n.Children {
			_, ok := byPath[paths.Join(n.Path, name)]
			require.True(t, ok, "dangling child %s in %s", name, n.Path)
		}
	}
}

func TestCreateFile(t *testing.T) {
	tree, backend := newTestTree(t)

	node, err := tree.CreateFile("/hello.txt", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "/hello.txt", node.Path)
	assert.True(t, node.IsFile())
	assert.NotEmpty(t, node.Signature)
	assert.Positive(t, node.ModifiedAt)

	rec, err := backend.Get("/hello.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []byte("hi"), rec.Content)

	checkInvariants(t, tree)
}

func TestCreateFileErrors(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateFile("/a.txt", nil)
	require.NoError(t, err)

	_, err = tree.CreateFile("/a.txt", nil)
	assert.ErrorIs(t, err, ErrPathExists)

	_, err = tree.CreateFile("/missing/b.txt", nil)
	assert.ErrorIs(t, err, ErrParentMissing)

	_, err = tree.CreateFile("", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestReadWriteFile(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateFile("/a.txt", []byte("v1"))
	require.NoError(t, err)
	first, err := tree.Get("/a.txt")
	require.NoError(t, err)

	require.NoError(t, tree.WriteFile("/a.txt", []byte("v2")))
	content, err := tree.ReadFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)

	second, err := tree.Get("/a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first.Signature, second.Signature)
	assert.Greater(t, second.ModifiedAt, first.ModifiedAt)

	_, err = tree.ReadFile("/nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.CreateDirectory("/d")
	require.NoError(t, err)
	_, err = tree.ReadFile("/d")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tree.WriteFile("/d", nil), ErrTypeMismatch)
}

func TestDeleteRecursive(t *testing.T) {
	tree, backend := newTestTree(t)

	_, err := tree.CreateDirectory("/d")
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/d/sub")
	require.NoError(t, err)
	_, err = tree.CreateFile("/d/sub/f.txt", []byte("x"))
	require.NoError(t, err)

	var deleted []string
	tree.Subscribe(func(ev Event) {
		if ev.Kind == EventDeleted {
			deleted = append(deleted, ev.Path)
		}
	})

	require.NoError(t, tree.Delete("/d"))
	assert.Equal(t, []string{"/d/sub/f.txt", "/d/sub", "/d"}, deleted, "deepest first")

	for _, p := range deleted {
		rec, err := backend.Get(p)
		require.NoError(t, err)
		assert.Nil(t, rec, "%s still persisted", p)
	}
	checkInvariants(t, tree)
}

func TestDeleteErrors(t *testing.T) {
	tree, _ := newTestTree(t)

	assert.ErrorIs(t, tree.Delete("/"), ErrRootDeletion)
	assert.ErrorIs(t, tree.Delete("/ghost"), ErrNotFound)
}

func TestRenameFile(t *testing.T) {
	tree, backend := newTestTree(t)

	_, err := tree.CreateFile("/a.txt", []byte("data"))
	require.NoError(t, err)
	require.NoError(t, tree.Rename("/a.txt", "/b.txt"))

	_, err = tree.Get("/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	content, err := tree.ReadFile("/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), content)

	rec, err := backend.Get("/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
	checkInvariants(t, tree)
}

func TestRenameDirectoryMovesSubtree(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/old")
	require.NoError(t, err)
	_, err = tree.CreateFile("/old/f.txt", []byte("x"))
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/dst")
	require.NoError(t, err)

	require.NoError(t, tree.Rename("/old", "/dst/new"))

	content, err := tree.ReadFile("/dst/new/f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), content)
	checkInvariants(t, tree)
}

func TestRenameErrors(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/d")
	require.NoError(t, err)
	_, err = tree.CreateFile("/f.txt", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, tree.Rename("/ghost", "/x"), ErrNotFound)
	assert.ErrorIs(t, tree.Rename("/f.txt", "/d"), ErrPathExists)
	assert.ErrorIs(t, tree.Rename("/f.txt", "/ghost/x"), ErrParentMissing)
	assert.ErrorIs(t, tree.Rename("/d", "/d/inside"), ErrInvalidPath)
	assert.ErrorIs(t, tree.Rename("/", "/x"), ErrRootDeletion)
}

func TestListSorted(t *testing.T) {
	tree, _ := newTestTree(t)

	for _, name := range []string{"/c.txt", "/a.txt", "/b.txt"} {
		_, err := tree.CreateFile(name, nil)
		require.NoError(t, err)
	}

	entries, err := tree.List("/")
	require.NoError(t, err)
	var names []string
	for _, n := range entries {
		names = append(names, n.Path)
	}
	assert.Equal(t, []string{"/a.txt", "/b.txt", "/c.txt"}, names)

	_, err = tree.List("/a.txt")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = tree.List("/ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGlob(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/docs")
	require.NoError(t, err)
	_, err = tree.CreateFile("/docs/a.txt", nil)
	require.NoError(t, err)
	_, err = tree.CreateFile("/docs/b.md", nil)
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/docs/deep")
	require.NoError(t, err)
	_, err = tree.CreateFile("/docs/deep/c.txt", nil)
	require.NoError(t, err)
	_, err = tree.CreateFile("/top.txt", nil)
	require.NoError(t, err)

	globPaths := func(pattern string) []string {
		t.Helper()
		nodes, err := tree.Glob(pattern)
		require.NoError(t, err)
		var out []string
		for _, n := range nodes {
			out = append(out, n.Path)
		}
		return out
	}

	assert.Equal(t, []string{"/docs/a.txt"}, globPaths("/docs/*.txt"))
	assert.Equal(t, []string{"/docs/a.txt", "/docs/deep/c.txt", "/top.txt"}, globPaths("/**/*.txt"))
	// A bare pattern matches anywhere in the tree.
	assert.Equal(t, []string{"/docs/a.txt", "/docs/deep/c.txt", "/top.txt"}, globPaths("*.txt"))
	assert.Equal(t, []string{"/docs/b.md"}, globPaths("*.md"))
	assert.Empty(t, globPaths("/*.json"))

	_, err = tree.Glob("/docs/[")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNavigation(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/docs")
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/docs/work")
	require.NoError(t, err)

	require.NoError(t, tree.NavigateTo("/docs"))
	assert.Equal(t, "/docs", tree.CurrentDir())

	// Relative paths resolve against the cursor.
	require.NoError(t, tree.NavigateTo("work"))
	assert.Equal(t, "/docs/work", tree.CurrentDir())

	_, err = tree.CreateFile("note.txt", []byte("n"))
	require.NoError(t, err)
	_, err = tree.Get("/docs/work/note.txt")
	require.NoError(t, err)

	tree.Up()
	assert.Equal(t, "/docs", tree.CurrentDir())

	assert.ErrorIs(t, tree.NavigateTo("/docs/work/note.txt"), ErrNotFound)
	assert.ErrorIs(t, tree.NavigateTo("/ghost"), ErrNotFound)
}

func TestCursorFollowsDeletes(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/d")
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/d/sub")
	require.NoError(t, err)
	require.NoError(t, tree.NavigateTo("/d/sub"))

	require.NoError(t, tree.Delete("/d"))
	assert.Equal(t, "/", tree.CurrentDir())
}

// failingBackend rejects writes after a configurable number of successes.
type failingBackend struct {
	*storage.Memory
	mu        sync.Mutex
	remaining int
}

func (f *failingBackend) Put(path string, rec *storage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return storage.Unavailable(errors.New("disk full"))
	}
	f.remaining--
	return f.Memory.Put(path, rec)
}

func TestFailedPersistenceLeavesMemoryUnchanged(t *testing.T) {
	backend := &failingBackend{Memory: storage.NewMemory(), remaining: 1}
	tree, err := New(backend)
	require.NoError(t, err)

	_, err = tree.CreateFile("/a.txt", []byte("x"))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	_, err = tree.Get("/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	root, err := tree.Get("/")
	require.NoError(t, err)
	assert.Empty(t, root.Children)
	checkInvariants(t, tree)
}

func TestHydrationRoundTrip(t *testing.T) {
	backend := storage.NewMemory()
	tree, err := New(backend)
	require.NoError(t, err)

	_, err = tree.CreateDirectory("/docs")
	require.NoError(t, err)
	_, err = tree.CreateFile("/docs/a.txt", []byte("alpha"))
	require.NoError(t, err)
	_, err = tree.CreateFile("/b.txt", []byte("beta"))
	require.NoError(t, err)

	rehydrated, err := New(backend)
	require.NoError(t, err)

	want := tree.Snapshot()
	got := rehydrated.Snapshot()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Path, got[i].Path)
		assert.Equal(t, want[i].Kind, got[i].Kind)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.Equal(t, want[i].ModifiedAt, got[i].ModifiedAt)
		assert.Equal(t, want[i].Signature, got[i].Signature)
	}
	checkInvariants(t, rehydrated)
}

func TestHydrationRepairsMissingParent(t *testing.T) {
	backend := storage.NewMemory()
	// An orphan record whose ancestors were lost.
	require.NoError(t, backend.Put("/lost/deep/f.txt", &storage.Record{
		Path: "/lost/deep/f.txt", Kind: storage.KindFile, Content: []byte("x"),
		ModifiedAt: 1, Signature: "sig",
	}))

	tree, err := New(backend)
	require.NoError(t, err)

	for _, p := range []string{"/lost", "/lost/deep", "/lost/deep/f.txt"} {
		_, err := tree.Get(p)
		require.NoError(t, err, p)
	}
	checkInvariants(t, tree)
}

func TestHydrationRepairFailureSurfaces(t *testing.T) {
	mem := storage.NewMemory()
	require.NoError(t, mem.Put("/", &storage.Record{
		Path: "/", Kind: storage.KindDirectory, ModifiedAt: 1, Signature: "sig",
	}))
	require.NoError(t, mem.Put("/lost/f.txt", &storage.Record{
		Path: "/lost/f.txt", Kind: storage.KindFile, Content: []byte("x"),
		ModifiedAt: 2, Signature: "sig",
	}))

	// The orphan needs /lost recreated, but the backend rejects the write.
	_, err := New(&failingBackend{Memory: mem, remaining: 0})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/lost", perr.Path)
}

func TestSeed(t *testing.T) {
	tree, err := New(storage.NewMemory(), WithSeed())
	require.NoError(t, err)

	content, err := tree.ReadFile("/documents/README.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, content)
	checkInvariants(t, tree)

	// A hydrated tree is never reseeded.
	_, err = tree.CreateFile("/mine.txt", nil)
	require.NoError(t, err)
}

func TestReset(t *testing.T) {
	backend := storage.NewMemory()
	tree, err := New(backend)
	require.NoError(t, err)

	_, err = tree.CreateFile("/a.txt", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, tree.NavigateTo("/"))

	require.NoError(t, tree.Reset())
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, "/", tree.CurrentDir())

	rec, err := backend.Get("/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApplyRemote(t *testing.T) {
	tree, backend := newTestTree(t)

	var pulled []string
	tree.Subscribe(func(ev Event) {
		if ev.Kind == EventUpdatedFromRemote {
			pulled = append(pulled, ev.Path)
		}
	})

	node, err := tree.ApplyRemote(&storage.Record{
		Path: "/from/cloud.txt", Kind: storage.KindFile,
		Content: []byte("remote"), ModifiedAt: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "/from/cloud.txt", node.Path)

	content, err := tree.ReadFile("/from/cloud.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), content)

	// The missing ancestor was created and reported too.
	assert.Equal(t, []string{"/from", "/from/cloud.txt"}, pulled)

	rec, err := backend.Get("/from/cloud.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	checkInvariants(t, tree)
}

func TestApplyRemotePersistsParentLink(t *testing.T) {
	tree, backend := newTestTree(t)

	_, err := tree.ApplyRemote(&storage.Record{
		Path: "/dir/f.txt", Kind: storage.KindFile,
		Content: []byte("remote"), ModifiedAt: 7,
	})
	require.NoError(t, err)

	// The updated parent records reach the backend, not just memory, so a
	// rehydrated tree sees the same hierarchy.
	dirRec, err := backend.Get("/dir")
	require.NoError(t, err)
	require.NotNil(t, dirRec)
	assert.Contains(t, dirRec.Children, "f.txt")

	rootRec, err := backend.Get("/")
	require.NoError(t, err)
	require.NotNil(t, rootRec)
	assert.Contains(t, rootRec.Children, "dir")
	checkInvariants(t, tree)
}

func TestApplyRemoteKindFlip(t *testing.T) {
	tree, _ := newTestTree(t)

	_, err := tree.CreateDirectory("/x")
	require.NoError(t, err)
	_, err = tree.CreateFile("/x/f.txt", nil)
	require.NoError(t, err)

	_, err = tree.ApplyRemote(&storage.Record{
		Path: "/x", Kind: storage.KindFile, Content: []byte("now a file"), ModifiedAt: 99,
	})
	require.NoError(t, err)

	content, err := tree.ReadFile("/x")
	require.NoError(t, err)
	assert.Equal(t, []byte("now a file"), content)
	_, err = tree.Get("/x/f.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	checkInvariants(t, tree)
}

func TestMonotonicTimestamps(t *testing.T) {
	tree, _ := newTestTree(t)

	var last int64
	for i := 0; i < 10; i++ {
		node, err := tree.CreateFile(fmt.Sprintf("/f%d.txt", i), nil)
		require.NoError(t, err)
		assert.Greater(t, node.ModifiedAt, last)
		last = node.ModifiedAt
	}
}
