package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/logging"
	"github.com/cirrusfs/cirrus/internal/shared/hash"
	"github.com/cirrusfs/cirrus/internal/shared/paths"
	"github.com/cirrusfs/cirrus/internal/storage"
)

// Tree owns the canonical node hierarchy. Every mutation is written to the
// backend before memory is touched; a failed write surfaces as
// *PersistenceError with the in-memory tree unchanged.
//
// The tree keeps a current-directory cursor so callers may use relative
// paths. All returned nodes are snapshots.
type Tree struct {
	mu      sync.RWMutex
	backend storage.Backend
	hasher  *hash.Hasher
	log     *logging.Logger
	events  *Registry

	nodes  map[string]*Node
	cwd    string
	lastTS int64
	seed   bool
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the tree's logger.
func WithLogger(log *logging.Logger) Option {
	return func(t *Tree) { t.log = log }
}

// WithHasher overrides the signature hasher.
func WithHasher(h *hash.Hasher) Option {
	return func(t *Tree) { t.hasher = h }
}

// WithSeed populates a brand-new tree with starter content on first run.
func WithSeed() Option {
	return func(t *Tree) { t.seed = true }
}

// New constructs a tree bound to backend, hydrating any prior state. An
// empty backend yields a tree holding only the root directory.
func New(backend storage.Backend, opts ...Option) (*Tree, error) {
	t := &Tree{
		backend: backend,
		hasher:  hash.Default(),
		log:     logging.NewNop(),
		nodes:   make(map[string]*Node),
		cwd:     paths.Root,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.events = NewRegistry(t.log)

	if err := t.hydrate(); err != nil {
		return nil, err
	}
	if t.seed && len(t.nodes) == 1 {
		t.plantSeed()
	}
	return t, nil
}

// hydrate loads records from the backend and repairs hierarchy invariants:
// missing parents are recreated and directory child-sets are recomputed from
// the actual path set. Unreadable records were already dropped by the
// backend.
func (t *Tree) hydrate() error {
	records, err := t.backend.ListAll()
	if err != nil {
		return persistErr("hydrate", paths.Root, err)
	}
	for _, rec := range records {
		p, err := paths.Normalize(paths.Root, rec.Path)
		if err != nil {
			continue
		}
		rec.Path = p
		t.nodes[p] = nodeFromRecord(rec)
	}

	root, ok := t.nodes[paths.Root]
	if !ok || !root.IsDir() {
		root = newDirectory(paths.Root, t.now(), t.hasher)
		t.nodes[paths.Root] = root
		if err := t.backend.Put(paths.Root, root.Record()); err != nil {
			return persistErr("hydrate", paths.Root, err)
		}
	}

	// Recreate missing ancestors, shallowest first.
	var all []string
	for p := range t.nodes {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return len(paths.Segments(all[i])) < len(paths.Segments(all[j])) })
	for _, p := range all {
		for parent := paths.Parent(p); !paths.IsRoot(parent); parent = paths.Parent(parent) {
			if _, ok := t.nodes[parent]; ok {
				break
			}
			dir := newDirectory(parent, t.now(), t.hasher)
			if err := t.backend.Put(parent, dir.Record()); err != nil {
				return persistErr("hydrate", parent, err)
			}
			t.nodes[parent] = dir
		}
	}

	// Child-sets are derived from the actual path set, not trusted from
	// records.
	for _, n := range t.nodes {
		if n.IsDir() {
			n.Children = make(map[string]struct{})
		}
	}
	for p := range t.nodes {
		if paths.IsRoot(p) {
			continue
		}
		parent := t.nodes[paths.Parent(p)]
		if parent != nil && parent.IsDir() {
			parent.Children[paths.Base(p)] = struct{}{}
		}
	}
	for _, n := range t.nodes {
		if n.IsDir() {
			n.refreshSignature(t.hasher)
		}
	}
	return nil
}

func (t *Tree) plantSeed() {
	seeds := []struct {
		path    string
		dir     bool
		content string
	}{
		{"/documents", true, ""},
		{"/documents/README.txt", false, "Welcome to your synchronized workspace.\n\nFiles here persist locally and reconcile with your cloud store.\n"},
		{"/data", true, ""},
		{"/data/sample.json", false, "{\n  \"name\": \"Example\",\n  \"value\": 42\n}\n"},
	}
	for _, s := range seeds {
		var err error
		if s.dir {
			_, err = t.CreateDirectory(s.path)
		} else {
			_, err = t.CreateFile(s.path, []byte(s.content))
		}
		if err != nil {
			t.log.Warn("failed to seed entry", zap.String("path", s.path), zap.Error(err))
		}
	}
}

// now returns a wall-clock millisecond timestamp that never repeats or moves
// backwards within this tree, so last-writer-wins comparisons are total.
func (t *Tree) now() int64 {
	ts := time.Now().UnixMilli()
	if ts <= t.lastTS {
		ts = t.lastTS + 1
	}
	t.lastTS = ts
	return ts
}

// Events returns the observer registry shared with the sync layer.
func (t *Tree) Events() *Registry { return t.events }

// Subscribe registers an observer for tree and sync events.
func (t *Tree) Subscribe(fn Observer) Handle { return t.events.Subscribe(fn) }

// Unsubscribe removes an observer.
func (t *Tree) Unsubscribe(h Handle) { t.events.Unsubscribe(h) }

func (t *Tree) resolve(p string) (string, error) {
	n, err := paths.Normalize(t.cwd, p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return n, nil
}

func (t *Tree) publish(events []Event) {
	for _, ev := range events {
		t.events.Publish(ev)
	}
}

// CreateFile creates a file at path with the given content.
func (t *Tree) CreateFile(path string, content []byte) (*Node, error) {
	t.mu.Lock()
	node, events, err := t.createFileLocked(path, content)
	t.mu.Unlock()
	t.publish(events)
	return node, err
}

func (t *Tree) createFileLocked(path string, content []byte) (*Node, []Event, error) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := t.nodes[p]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPathExists, p)
	}
	parent, ok := t.nodes[paths.Parent(p)]
	if !ok || !parent.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrParentMissing, p)
	}

	ts := t.now()
	node := newFile(p, content, ts, t.hasher)
	newParent := parent.Clone()
	newParent.Children[paths.Base(p)] = struct{}{}
	newParent.ModifiedAt = ts
	newParent.refreshSignature(t.hasher)

	if err := t.backend.Put(p, node.Record()); err != nil {
		return nil, nil, persistErr("create_file", p, err)
	}
	if err := t.backend.Put(newParent.Path, newParent.Record()); err != nil {
		return nil, nil, persistErr("create_file", p, err)
	}
	t.nodes[p] = node
	t.nodes[newParent.Path] = newParent

	return node.Clone(), []Event{
		{Kind: EventCreated, Path: p, Node: node.Clone()},
		{Kind: EventModified, Path: newParent.Path, Node: newParent.Clone()},
	}, nil
}

// CreateDirectory creates an empty directory at path.
func (t *Tree) CreateDirectory(path string) (*Node, error) {
	t.mu.Lock()
	node, events, err := t.createDirLocked(path)
	t.mu.Unlock()
	t.publish(events)
	return node, err
}

func (t *Tree) createDirLocked(path string) (*Node, []Event, error) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	if paths.IsRoot(p) {
		return nil, nil, fmt.Errorf("%w: %s", ErrPathExists, p)
	}
	if _, ok := t.nodes[p]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPathExists, p)
	}
	parent, ok := t.nodes[paths.Parent(p)]
	if !ok || !parent.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrParentMissing, p)
	}

	ts := t.now()
	node := newDirectory(p, ts, t.hasher)
	newParent := parent.Clone()
	newParent.Children[paths.Base(p)] = struct{}{}
	newParent.ModifiedAt = ts
	newParent.refreshSignature(t.hasher)

	if err := t.backend.Put(p, node.Record()); err != nil {
		return nil, nil, persistErr("create_directory", p, err)
	}
	if err := t.backend.Put(newParent.Path, newParent.Record()); err != nil {
		return nil, nil, persistErr("create_directory", p, err)
	}
	t.nodes[p] = node
	t.nodes[newParent.Path] = newParent

	return node.Clone(), []Event{
		{Kind: EventCreated, Path: p, Node: node.Clone()},
		{Kind: EventModified, Path: newParent.Path, Node: newParent.Clone()},
	}, nil
}

// ReadFile returns the content of the file at path.
func (t *Tree) ReadFile(path string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	node, ok := t.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if !node.IsFile() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, p)
	}
	return append([]byte(nil), node.Content...), nil
}

// WriteFile replaces the content of an existing file.
func (t *Tree) WriteFile(path string, content []byte) error {
	t.mu.Lock()
	events, err := t.writeFileLocked(path, content)
	t.mu.Unlock()
	t.publish(events)
	return err
}

func (t *Tree) writeFileLocked(path string, content []byte) ([]Event, error) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	node, ok := t.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if !node.IsFile() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrTypeMismatch, p)
	}

	updated := node.Clone()
	updated.Content = append([]byte(nil), content...)
	updated.ModifiedAt = t.now()
	updated.refreshSignature(t.hasher)

	if err := t.backend.Put(p, updated.Record()); err != nil {
		return nil, persistErr("write_file", p, err)
	}
	t.nodes[p] = updated

	return []Event{{Kind: EventModified, Path: p, Node: updated.Clone()}}, nil
}

// Delete removes the node at path, recursively for directories. Events fire
// once per removed node, deepest first.
func (t *Tree) Delete(path string) error {
	t.mu.Lock()
	events, err := t.deleteLocked(path)
	t.mu.Unlock()
	t.publish(events)
	return err
}

func (t *Tree) deleteLocked(path string) ([]Event, error) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if paths.IsRoot(p) {
		return nil, ErrRootDeletion
	}
	if _, ok := t.nodes[p]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	parent := t.nodes[paths.Parent(p)]

	doomed := t.subtreeLocked(p) // deepest first
	newParent := parent.Clone()
	delete(newParent.Children, paths.Base(p))
	newParent.ModifiedAt = t.now()
	newParent.refreshSignature(t.hasher)

	for _, n := range doomed {
		if err := t.backend.Delete(n.Path); err != nil {
			return nil, persistErr("delete", n.Path, err)
		}
	}
	if err := t.backend.Put(newParent.Path, newParent.Record()); err != nil {
		return nil, persistErr("delete", p, err)
	}

	events := make([]Event, 0, len(doomed)+1)
	for _, n := range doomed {
		delete(t.nodes, n.Path)
		events = append(events, Event{Kind: EventDeleted, Path: n.Path, Node: n.Clone()})
	}
	t.nodes[newParent.Path] = newParent
	events = append(events, Event{Kind: EventModified, Path: newParent.Path, Node: newParent.Clone()})

	if paths.IsAncestor(p, t.cwd) || t.cwd == p {
		t.cwd = paths.Parent(p)
	}
	return events, nil
}

// subtreeLocked returns the node at p and all descendants, deepest first.
func (t *Tree) subtreeLocked(p string) []*Node {
	var out []*Node
	for path, n := range t.nodes {
		if path == p || paths.IsAncestor(p, path) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return len(paths.Segments(out[i].Path)) > len(paths.Segments(out[j].Path))
	})
	return out
}

// Rename moves the node at from, together with its subtree, to to.
func (t *Tree) Rename(from, to string) error {
	t.mu.Lock()
	events, err := t.renameLocked(from, to)
	t.mu.Unlock()
	t.publish(events)
	return err
}

func (t *Tree) renameLocked(from, to string) ([]Event, error) {
	src, err := t.resolve(from)
	if err != nil {
		return nil, err
	}
	dst, err := t.resolve(to)
	if err != nil {
		return nil, err
	}
	if paths.IsRoot(src) {
		return nil, ErrRootDeletion
	}
	if _, ok := t.nodes[src]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if _, ok := t.nodes[dst]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPathExists, dst)
	}
	if src == dst || paths.IsAncestor(src, dst) {
		return nil, fmt.Errorf("%w: cannot move %s into itself", ErrInvalidPath, src)
	}
	dstParent, ok := t.nodes[paths.Parent(dst)]
	if !ok || !dstParent.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrParentMissing, dst)
	}

	ts := t.now()
	moved := t.subtreeLocked(src) // deepest first
	renamed := make([]*Node, len(moved))
	for i, n := range moved {
		clone := n.Clone()
		clone.Path = paths.Rebase(n.Path, src, dst)
		if n.Path == src {
			clone.ModifiedAt = ts
		}
		renamed[i] = clone
	}

	srcParent := t.nodes[paths.Parent(src)]
	newSrcParent := srcParent.Clone()
	delete(newSrcParent.Children, paths.Base(src))
	var newDstParent *Node
	if paths.Parent(src) == paths.Parent(dst) {
		newDstParent = newSrcParent
	} else {
		newDstParent = dstParent.Clone()
	}
	newDstParent.Children[paths.Base(dst)] = struct{}{}
	newSrcParent.ModifiedAt = ts
	newSrcParent.refreshSignature(t.hasher)
	newDstParent.ModifiedAt = ts
	newDstParent.refreshSignature(t.hasher)

	for _, n := range renamed {
		if err := t.backend.Put(n.Path, n.Record()); err != nil {
			return nil, persistErr("rename", n.Path, err)
		}
	}
	for _, n := range moved {
		if err := t.backend.Delete(n.Path); err != nil {
			return nil, persistErr("rename", n.Path, err)
		}
	}
	if err := t.backend.Put(newSrcParent.Path, newSrcParent.Record()); err != nil {
		return nil, persistErr("rename", src, err)
	}
	if newDstParent != newSrcParent {
		if err := t.backend.Put(newDstParent.Path, newDstParent.Record()); err != nil {
			return nil, persistErr("rename", dst, err)
		}
	}

	var events []Event
	for i, n := range moved {
		delete(t.nodes, n.Path)
		t.nodes[renamed[i].Path] = renamed[i]
		events = append(events, Event{Kind: EventRenamed, Path: renamed[i].Path, OldPath: n.Path, Node: renamed[i].Clone()})
	}
	t.nodes[newSrcParent.Path] = newSrcParent
	events = append(events, Event{Kind: EventModified, Path: newSrcParent.Path, Node: newSrcParent.Clone()})
	if newDstParent != newSrcParent {
		t.nodes[newDstParent.Path] = newDstParent
		events = append(events, Event{Kind: EventModified, Path: newDstParent.Path, Node: newDstParent.Clone()})
	}

	if t.cwd == src || paths.IsAncestor(src, t.cwd) {
		t.cwd = paths.Rebase(t.cwd, src, dst)
	}
	return events, nil
}

// List returns snapshots of the entries of the directory at path, sorted by
// name.
func (t *Tree) List(path string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	dir, ok := t.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("%w: %s is a file", ErrTypeMismatch, p)
	}
	out := make([]*Node, 0, len(dir.Children))
	for _, name := range dir.ChildNames() {
		if child, ok := t.nodes[paths.Join(p, name)]; ok {
			out = append(out, child.Clone())
		}
	}
	return out, nil
}

// Glob returns snapshots of all nodes whose paths match pattern, sorted by
// path. Patterns follow doublestar syntax ("**" spans directories); a pattern
// without a leading slash matches anywhere in the tree.
func (t *Tree) Glob(pattern string) ([]*Node, error) {
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/**/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad pattern %q", ErrInvalidPath, pattern)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for p, n := range t.nodes {
		if paths.IsRoot(p) {
			continue
		}
		ok, err := doublestar.Match(pattern, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if ok {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Get returns a snapshot of the node at path.
func (t *Tree) Get(path string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	node, ok := t.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return node.Clone(), nil
}

// NavigateTo moves the current-directory cursor to path.
func (t *Tree) NavigateTo(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.resolve(path)
	if err != nil {
		return err
	}
	node, ok := t.nodes[p]
	if !ok || !node.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	t.cwd = p
	return nil
}

// Up moves the cursor to the parent directory.
func (t *Tree) Up() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cwd = paths.Parent(t.cwd)
}

// CurrentDir returns the cursor's path.
func (t *Tree) CurrentDir() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cwd
}

// Snapshot returns clones of every node in the tree.
func (t *Tree) Snapshot() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Reset wipes the tree and its backend back to an empty (or seeded) state.
func (t *Tree) Reset() error {
	t.mu.Lock()
	doomed := t.subtreeLocked(paths.Root)
	var events []Event
	for _, n := range doomed {
		if err := t.backend.Delete(n.Path); err != nil {
			t.mu.Unlock()
			return persistErr("reset", n.Path, err)
		}
	}
	root := newDirectory(paths.Root, t.now(), t.hasher)
	if err := t.backend.Put(paths.Root, root.Record()); err != nil {
		t.mu.Unlock()
		return persistErr("reset", paths.Root, err)
	}
	for _, n := range doomed {
		if paths.IsRoot(n.Path) {
			continue
		}
		events = append(events, Event{Kind: EventDeleted, Path: n.Path, Node: n.Clone()})
	}
	t.nodes = map[string]*Node{paths.Root: root}
	t.cwd = paths.Root
	seed := t.seed
	t.mu.Unlock()

	t.publish(events)
	if seed {
		t.plantSeed()
	}
	return nil
}

// ApplyRemote installs a record pulled from the remote replica, creating any
// missing ancestor directories. It persists locally and emits
// UpdatedFromRemote rather than Created/Modified so the sync layer can tell
// pulls apart from local edits.
func (t *Tree) ApplyRemote(rec *storage.Record) (*Node, error) {
	t.mu.Lock()
	node, events, err := t.applyRemoteLocked(rec)
	t.mu.Unlock()
	t.publish(events)
	return node, err
}

func (t *Tree) applyRemoteLocked(rec *storage.Record) (*Node, []Event, error) {
	p, err := paths.Normalize(paths.Root, rec.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if paths.IsRoot(p) && kindFromString(rec.Kind) != KindDirectory {
		return nil, nil, fmt.Errorf("%w: root must be a directory", ErrTypeMismatch)
	}

	var events []Event

	// A kind flip replaces the existing subtree wholesale.
	if existing, ok := t.nodes[p]; ok && existing.Kind != kindFromString(rec.Kind) {
		for _, n := range t.subtreeLocked(p) {
			if err := t.backend.Delete(n.Path); err != nil {
				return nil, nil, persistErr("apply_remote", n.Path, err)
			}
			delete(t.nodes, n.Path)
			events = append(events, Event{Kind: EventDeleted, Path: n.Path, Node: n.Clone()})
		}
	}

	// Recreate missing ancestors, shallowest first.
	var missing []string
	for parent := paths.Parent(p); !paths.IsRoot(parent); parent = paths.Parent(parent) {
		if existing, ok := t.nodes[parent]; ok {
			if !existing.IsDir() {
				return nil, events, fmt.Errorf("%w: %s is a file", ErrTypeMismatch, parent)
			}
			break
		}
		missing = append([]string{parent}, missing...)
	}
	for _, dirPath := range missing {
		dir := newDirectory(dirPath, rec.ModifiedAt, t.hasher)
		if err := t.backend.Put(dirPath, dir.Record()); err != nil {
			return nil, events, persistErr("apply_remote", dirPath, err)
		}
		t.nodes[dirPath] = dir
		if err := t.linkToParentLocked(dirPath); err != nil {
			return nil, events, err
		}
		events = append(events, Event{Kind: EventUpdatedFromRemote, Path: dirPath, Node: dir.Clone()})
	}

	node := nodeFromRecord(rec)
	node.Path = p
	if node.IsDir() {
		// Child-sets stay derived from actual children so the hierarchy
		// invariant holds even when the remote copy references entries we
		// have not pulled.
		node.Children = make(map[string]struct{})
		for childPath := range t.nodes {
			if !paths.IsRoot(childPath) && paths.Parent(childPath) == p {
				node.Children[paths.Base(childPath)] = struct{}{}
			}
		}
	}
	node.refreshSignature(t.hasher)
	if node.ModifiedAt > t.lastTS {
		t.lastTS = node.ModifiedAt
	}

	if err := t.backend.Put(p, node.Record()); err != nil {
		return nil, events, persistErr("apply_remote", p, err)
	}
	t.nodes[p] = node
	if !paths.IsRoot(p) {
		if err := t.linkToParentLocked(p); err != nil {
			return nil, events, err
		}
	}
	events = append(events, Event{Kind: EventUpdatedFromRemote, Path: p, Node: node.Clone()})
	return node.Clone(), events, nil
}

// linkToParentLocked records p in its parent's child-set and persists the
// updated parent, without emitting an event; used only on the remote-apply
// path.
func (t *Tree) linkToParentLocked(p string) error {
	parent, ok := t.nodes[paths.Parent(p)]
	if !ok || !parent.IsDir() {
		return nil
	}
	if _, ok := parent.Children[paths.Base(p)]; ok {
		return nil
	}
	updated := parent.Clone()
	updated.Children[paths.Base(p)] = struct{}{}
	updated.refreshSignature(t.hasher)
	if err := t.backend.Put(updated.Path, updated.Record()); err != nil {
		return persistErr("apply_remote", updated.Path, err)
	}
	t.nodes[updated.Path] = updated
	return nil
}
