package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordStore is a minimal in-memory implementation of the remote record
// protocol, mounted under /records.
type recordStore struct {
	mu      sync.Mutex
	records map[string][]byte
	token   string
}

func newRecordStore(token string) *recordStore {
	return &recordStore{records: make(map[string][]byte), token: token}
}

func (s *recordStore) readBody(r *http.Request) ([]byte, error) {
	body := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		body = zr
	}
	return io.ReadAll(body)
}

func (s *recordStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Keys are path-escaped, so the raw path is the source of truth.
	escaped := strings.TrimPrefix(r.URL.EscapedPath(), "/records")
	escaped = strings.TrimPrefix(escaped, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	if escaped == "" {
		var parts []string
		for _, data := range s.records {
			parts = append(parts, string(data))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, "["+strings.Join(parts, ",")+"]")
		return
	}

	key, err := url.PathUnescape(escaped)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, ok := s.records[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case http.MethodPut:
		data, err := s.readBody(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.records[key] = data
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if _, ok := s.records[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.records, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestRemoteRoundTrip(t *testing.T) {
	store := newRecordStore("secret")
	srv := httptest.NewServer(store)
	defer srv.Close()

	remote := NewRemote(RemoteConfig{Endpoint: srv.URL, Credential: "secret"})
	ctx := context.Background()

	rec, err := remote.Get(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec, "404 reads as absent")

	put := &Record{Path: "/a.txt", Kind: KindFile, Content: []byte("hello"), ModifiedAt: 7, Signature: "sig"}
	require.NoError(t, remote.Put(ctx, "/a.txt", put))

	got, err := remote.Get(ctx, "/a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, put, got)

	all, err := remote.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/a.txt", all[0].Path)

	require.NoError(t, remote.Delete(ctx, "/a.txt"))
	require.NoError(t, remote.Delete(ctx, "/a.txt"), "deleting an absent record succeeds")

	rec, err = remote.Get(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRemoteRejectsBadCredential(t *testing.T) {
	store := newRecordStore("secret")
	srv := httptest.NewServer(store)
	defer srv.Close()

	remote := NewRemote(RemoteConfig{Endpoint: srv.URL, Credential: "wrong"})
	_, err := remote.Get(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestRemoteServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	remote := NewRemote(RemoteConfig{Endpoint: srv.URL})
	err := remote.Put(context.Background(), "/a.txt", &Record{Path: "/a.txt", Kind: KindFile})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteUnreachableIsUnavailable(t *testing.T) {
	remote := NewRemote(RemoteConfig{Endpoint: "http://127.0.0.1:1"})
	_, err := remote.Get(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteCorruptRecordIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	remote := NewRemote(RemoteConfig{Endpoint: srv.URL})
	rec, err := remote.Get(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
