package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Node kinds as persisted. The tree layers richer types on top.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

var (
	// ErrUnavailable marks a transient backend failure; callers may retry.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrRejected marks a permanent backend failure; callers must not retry.
	ErrRejected = errors.New("storage: backend rejected request")
)

// Unavailable wraps err as a transient backend failure.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Rejected wraps err as a permanent backend failure.
func Rejected(err error) error {
	return fmt.Errorf("%w: %v", ErrRejected, err)
}

// Record is the persisted layout of one filesystem node. Remote and local
// backends share this schema; a record that fails to decode is treated as
// absent, never as a fatal error.
type Record struct {
	Path       string   `json:"path"`
	Kind       string   `json:"kind"`
	Content    []byte   `json:"content,omitempty"`
	Children   []string `json:"children,omitempty"`
	ModifiedAt int64    `json:"modified_at"`
	Signature  string   `json:"signature"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Content = append([]byte(nil), r.Content...)
	out.Children = append([]string(nil), r.Children...)
	return &out
}

// EncodeRecord serializes a record to its wire form.
func EncodeRecord(r *Record) ([]byte, error) {
	return sonic.Marshal(r)
}

// DecodeRecord deserializes a record from its wire form.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Path == "" || (r.Kind != KindFile && r.Kind != KindDirectory) {
		return nil, fmt.Errorf("storage: malformed record")
	}
	return &r, nil
}

// Backend is the synchronous persistence contract. Get returns a nil record
// when the key is absent.
type Backend interface {
	Get(path string) (*Record, error)
	Put(path string, record *Record) error
	Delete(path string) error
	ListAll() ([]*Record, error)
}

// AsyncBackend mirrors Backend for network-backed providers. Every call
// honors context cancellation.
type AsyncBackend interface {
	Get(ctx context.Context, path string) (*Record, error)
	Put(ctx context.Context, path string, record *Record) error
	Delete(ctx context.Context, path string) error
	ListAll(ctx context.Context) ([]*Record, error)
}
