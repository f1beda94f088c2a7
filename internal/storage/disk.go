package storage

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const recordExt = ".rec"

// Disk is a durable local backend storing one record file per key under a
// root directory. Record file names are hex-encoded keys, so arbitrary
// virtual paths never collide with host filesystem semantics.
//
// A record that cannot be read or decoded is treated as absent.
type Disk struct {
	root string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewDisk creates a disk backend rooted at dir, creating it if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Unavailable(err)
	}
	return &Disk{root: dir}, nil
}

func (d *Disk) keyFile(path string) string {
	return filepath.Join(d.root, hex.EncodeToString([]byte(path))+recordExt)
}

func (d *Disk) Get(path string) (*Record, error) {
	data, err := os.ReadFile(d.keyFile(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Unavailable(err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		// Corrupted record: treated as absence, re-sync recovers it.
		return nil, nil
	}
	return rec, nil
}

func (d *Disk) Put(path string, record *Record) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return Rejected(err)
	}
	target := d.keyFile(path)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Unavailable(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return Unavailable(err)
	}
	return nil
}

func (d *Disk) Delete(path string) error {
	if err := os.Remove(d.keyFile(path)); err != nil && !os.IsNotExist(err) {
		return Unavailable(err)
	}
	return nil
}

func (d *Disk) ListAll() ([]*Record, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, Unavailable(err)
	}
	var out []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, e.Name()))
		if err != nil {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Watch reports out-of-band changes to stored records, invoking fn with the
// virtual path of each record modified by another process. Stop with Close.
func (d *Disk) Watch(fn func(path string)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher != nil {
		return fmt.Errorf("storage: watch already active")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return Unavailable(err)
	}
	if err := w.Add(d.root); err != nil {
		w.Close()
		return Unavailable(err)
	}
	d.watcher = w
	d.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !strings.HasSuffix(name, recordExt) {
					continue
				}
				raw, err := hex.DecodeString(strings.TrimSuffix(name, recordExt))
				if err != nil {
					continue
				}
				fn(string(raw))
			case <-w.Errors:
			case <-d.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is active.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher == nil {
		return nil
	}
	close(d.done)
	err := d.watcher.Close()
	d.watcher = nil
	return err
}
