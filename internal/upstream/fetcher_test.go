package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any-hub/any-cache/internal/config"
)

func newTestSource(t *testing.T, serverURL string, cfg config.SourceConfig) Source {
	t.Helper()
	cfg.Upstream = serverURL
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	source, err := NewSource(cfg)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return source
}

func newTestFetcher(maxRetries int) *Fetcher {
	return NewFetcher(nil, nil, Options{MaxRetries: maxRetries, InitialBackoff: time.Millisecond})
}

func TestFetchReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pkg/file.tgz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("tarball"))
	}))
	defer server.Close()

	f := newTestFetcher(0)
	raw, err := f.Producer(newTestSource(t, server.URL, config.SourceConfig{}), "pkg/file.tgz")(context.Background())
	if err != nil {
		t.Fatalf("producer error: %v", err)
	}
	body, ok := raw.([]byte)
	if !ok || string(body) != "tarball" {
		t.Fatalf("unexpected producer result %#v", raw)
	}
}

func TestFetchSendsBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ci" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("private"))
	}))
	defer server.Close()

	source := newTestSource(t, server.URL, config.SourceConfig{Username: "ci", Password: "secret"})
	body, err := newTestFetcher(0).Fetch(context.Background(), source, "artifact")
	if err != nil || string(body) != "private" {
		t.Fatalf("expected authenticated fetch, got %q err=%v", body, err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("eventually"))
	}))
	defer server.Close()

	body, err := newTestFetcher(3).Fetch(context.Background(), newTestSource(t, server.URL, config.SourceConfig{}), "x")
	if err != nil || string(body) != "eventually" {
		t.Fatalf("expected success after retries, got %q err=%v", body, err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), newTestSource(t, server.URL, config.SourceConfig{}), "x")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(3)
	source := newTestSource(t, server.URL, config.SourceConfig{})
	for range 6 {
		_, err := f.Fetch(context.Background(), source, "missing")
		if !errors.Is(err, ErrUpstreamRejected) {
			t.Fatalf("expected ErrUpstreamRejected, got %v", err)
		}
	}
	if hits.Load() != 6 {
		t.Fatalf("client errors must not be retried or trip the breaker, got %d hits", hits.Load())
	}
	if state := f.BreakerState(source.Name); state == "open" {
		t.Fatalf("breaker should stay closed on 4xx")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.GlobalConfig{
		MaxRetries:        4,
		InitialBackoff:    config.Duration(2 * time.Second),
		UpstreamRateLimit: 12.5,
		UpstreamBurst:     3,
	})
	if opts.MaxRetries != 4 || opts.InitialBackoff != 2*time.Second || opts.RateLimit != 12.5 || opts.Burst != 3 {
		t.Fatalf("unexpected options %+v", opts)
	}
}
