package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	defer d.Close()

	rec, err := d.Get("/a")
	require.NoError(t, err)
	assert.Nil(t, rec)

	put := &Record{Path: "/a", Kind: KindFile, Content: []byte("x"), ModifiedAt: 1, Signature: "s"}
	require.NoError(t, d.Put("/a", put))

	got, err := d.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, put, got)

	require.NoError(t, d.Delete("/a"))
	got, err = d.Get("/a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, d.Delete("/a"))
}

func TestDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDisk(dir)
	require.NoError(t, err)
	require.NoError(t, d.Put("/docs/a.txt", &Record{Path: "/docs/a.txt", Kind: KindFile, Content: []byte("x")}))
	require.NoError(t, d.Close())

	d2, err := NewDisk(dir)
	require.NoError(t, err)
	defer d2.Close()

	all, err := d2.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/docs/a.txt", all[0].Path)
}

func TestDiskCorruptRecordIsAbsent(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Put("/a", &Record{Path: "/a", Kind: KindFile}))
	require.NoError(t, d.Put("/b", &Record{Path: "/b", Kind: KindFile}))

	// Truncate /a's record behind the backend's back.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	corrupted := false
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(full)
		require.NoError(t, err)
		rec, err := DecodeRecord(data)
		if err == nil && rec.Path == "/a" {
			require.NoError(t, os.WriteFile(full, []byte("{garbage"), 0o644))
			corrupted = true
		}
	}
	require.True(t, corrupted)

	rec, err := d.Get("/a")
	require.NoError(t, err)
	assert.Nil(t, rec, "unreadable record reads as absent")

	all, err := d.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1, "unreadable record skipped in listing")
	assert.Equal(t, "/b", all[0].Path)
}

func TestDiskWatch(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)
	defer d.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, d.Watch(func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	}))
	assert.Error(t, d.Watch(func(string) {}), "second watch rejected")

	// Simulate another process writing a record.
	other, err := NewDisk(dir)
	require.NoError(t, err)
	require.NoError(t, other.Put("/external.txt", &Record{Path: "/external.txt", Kind: KindFile}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range seen {
			if p == "/external.txt" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}
