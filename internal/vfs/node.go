package vfs

import (
	"sort"

	"github.com/cirrusfs/cirrus/internal/shared/hash"
	"github.com/cirrusfs/cirrus/internal/storage"
)

// Kind distinguishes files from directories. It is immutable after creation.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return storage.KindFile
	case KindDirectory:
		return storage.KindDirectory
	default:
		return "unknown"
	}
}

func kindFromString(s string) Kind {
	if s == storage.KindDirectory {
		return KindDirectory
	}
	return KindFile
}

// Node is one file or directory in the tree. Content is meaningful for files
// only, Children for directories only. The signature fingerprints content
// (files) or the child-name set (directories) so change detection never needs
// a full-content comparison.
type Node struct {
	Path       string
	Kind       Kind
	Content    []byte
	Children   map[string]struct{}
	ModifiedAt int64
	Signature  string
}

func newFile(path string, content []byte, ts int64, h *hash.Hasher) *Node {
	n := &Node{Path: path, Kind: KindFile, Content: append([]byte(nil), content...), ModifiedAt: ts}
	n.refreshSignature(h)
	return n
}

func newDirectory(path string, ts int64, h *hash.Hasher) *Node {
	n := &Node{Path: path, Kind: KindDirectory, Children: make(map[string]struct{}), ModifiedAt: ts}
	n.refreshSignature(h)
	return n
}

// IsFile reports whether the node is a file.
func (n *Node) IsFile() bool { return n.Kind == KindFile }

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.Kind == KindDirectory }

// ChildNames returns the directory's child segments in sorted order.
func (n *Node) ChildNames() []string {
	if len(n.Children) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy safe to hand outside the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Path:       n.Path,
		Kind:       n.Kind,
		Content:    append([]byte(nil), n.Content...),
		ModifiedAt: n.ModifiedAt,
		Signature:  n.Signature,
	}
	if n.Children != nil {
		out.Children = make(map[string]struct{}, len(n.Children))
		for name := range n.Children {
			out.Children[name] = struct{}{}
		}
	}
	return out
}

func (n *Node) refreshSignature(h *hash.Hasher) {
	if n.IsDir() {
		n.Signature = h.SumChildren(n.ChildNames())
		return
	}
	n.Signature = h.Sum(n.Content)
}

// Record converts the node to its persisted layout.
func (n *Node) Record() *storage.Record {
	return &storage.Record{
		Path:       n.Path,
		Kind:       n.Kind.String(),
		Content:    append([]byte(nil), n.Content...),
		Children:   n.ChildNames(),
		ModifiedAt: n.ModifiedAt,
		Signature:  n.Signature,
	}
}

// FromRecord builds a detached node snapshot from a persisted record.
// The snapshot is not part of any tree.
func FromRecord(rec *storage.Record) *Node {
	return nodeFromRecord(rec)
}

func nodeFromRecord(rec *storage.Record) *Node {
	n := &Node{
		Path:       rec.Path,
		Kind:       kindFromString(rec.Kind),
		ModifiedAt: rec.ModifiedAt,
		Signature:  rec.Signature,
	}
	if n.IsDir() {
		n.Children = make(map[string]struct{}, len(rec.Children))
		for _, name := range rec.Children {
			n.Children[name] = struct{}{}
		}
	} else {
		n.Content = append([]byte(nil), rec.Content...)
	}
	return n
}
