package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
)

// RemoteConfig configures the HTTP record-store client.
type RemoteConfig struct {
	// Endpoint is the base URL of the record store, e.g. https://store.example.com/v1.
	Endpoint string
	// Credential is an opaque bearer token; acquisition is out of scope.
	Credential string
	// Timeout bounds a single round-trip, zero means 30s.
	Timeout time.Duration
}

// Remote is an AsyncBackend backed by an HTTP record store. Bodies are
// gzip-compressed; transport failures and 5xx responses surface as
// ErrUnavailable, other non-2xx responses as ErrRejected.
type Remote struct {
	cfg    RemoteConfig
	client *retryablehttp.Client
}

// NewRemote creates a remote backend client.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	return &Remote{cfg: cfg, client: client}
}

func (r *Remote) recordURL(path string) string {
	return fmt.Sprintf("%s/records/%s", r.cfg.Endpoint, url.PathEscape(path))
}

func (r *Remote) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, Rejected(err)
		}
		if err := zw.Close(); err != nil {
			return nil, Rejected(err)
		}
		reader = &buf
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, Rejected(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
	}
	if r.cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Credential)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, Unavailable(err)
	}
	return resp, nil
}

func classify(resp *http.Response) error {
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}
	return Rejected(fmt.Errorf("status %d", resp.StatusCode))
}

func (r *Remote) Get(ctx context.Context, path string) (*Record, error) {
	resp, err := r.do(ctx, http.MethodGet, r.recordURL(path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Unavailable(err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		// Corruption is absence; the next push repairs the remote copy.
		return nil, nil
	}
	return rec, nil
}

func (r *Remote) Put(ctx context.Context, path string, record *Record) error {
	body, err := EncodeRecord(record)
	if err != nil {
		return Rejected(err)
	}
	resp, err := r.do(ctx, http.MethodPut, r.recordURL(path), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return classify(resp)
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, path string) error {
	resp, err := r.do(ctx, http.MethodDelete, r.recordURL(path), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return classify(resp)
	}
	return nil
}

func (r *Remote) ListAll(ctx context.Context) ([]*Record, error) {
	resp, err := r.do(ctx, http.MethodGet, r.cfg.Endpoint+"/records", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Unavailable(err)
	}
	var records []*Record
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, Rejected(err)
	}
	return records, nil
}
