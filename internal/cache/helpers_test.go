package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore(t *testing.T, capacity int64, clock *fakeClock) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(capacity, nil)
	if clock != nil {
		store.now = clock.Now
	}
	return store
}

func newTestDiskStore(t *testing.T, root string, capacity int64, clock *fakeClock) *DiskStore {
	t.Helper()
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	store, err := openDiskStore(root, capacity, nil, now, os.Remove)
	if err != nil {
		t.Fatalf("open disk store: %v", err)
	}
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("disk store scan: %v", err)
	}
	return store
}

func writeTestFile(t *testing.T, path, content string) os.FileInfo {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	return info
}

func staticProducer(content any) Producer {
	return func(context.Context) (any, error) { return content, nil }
}
