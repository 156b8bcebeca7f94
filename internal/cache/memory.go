package cache

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

type memoryEntry struct {
	key        string
	content    string
	size       int64
	createdAt  time.Time
	lastUsedAt time.Time
	seq        uint64
}

func (e *memoryEntry) lastUsed() time.Time { return e.lastUsedAt }
func (e *memoryEntry) order() uint64       { return e.seq }

// MemoryStore 是按字节计量、LRU 淘汰的内存层。每次操作（含淘汰）在同一把锁内完成。
type MemoryStore struct {
	capacity int64
	logger   logrus.FieldLogger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry
	size    int64
	seq     uint64
	stats   TierStats
}

// NewMemoryStore 构造容量为 capacity 字节的内存层，logger 为空时静默。
func NewMemoryStore(capacity int64, logger logrus.FieldLogger) *MemoryStore {
	if logger == nil {
		logger = discardLogger()
	}
	return &MemoryStore{
		capacity: capacity,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*memoryEntry),
	}
}

// Set 写入内容。键已存在时只刷新 lastUsedAt，内容保持首次写入的版本。
func (m *MemoryStore) Set(key, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.entries[key]; ok {
		entry.lastUsedAt = now
		m.logger.WithFields(logrus.Fields{
			"action": "memory_touch",
			"key":    key,
		}).Debug("memory entry already present")
		return
	}

	m.seq++
	entry := &memoryEntry{
		key:        key,
		content:    content,
		size:       int64(len(content)),
		createdAt:  now,
		lastUsedAt: now,
		seq:        m.seq,
	}
	m.entries[key] = entry
	m.size += entry.size
	m.logger.WithFields(logrus.Fields{
		"action": "memory_set",
		"key":    key,
		"size":   humanize.Bytes(uint64(entry.size)),
	}).Info("saving file in memory cache")

	m.evict()
}

// Get 命中时刷新 lastUsedAt 并返回内容。
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return "", false
	}
	entry.lastUsedAt = m.now()
	m.stats.Hits++
	m.logger.WithFields(logrus.Fields{
		"action": "memory_hit",
		"key":    key,
	}).Debug("file found in memory cache")
	return entry.content, true
}

// Contains 判断键是否驻留，不刷新访问时间。
func (m *MemoryStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Size 返回当前驻留内容的总字节数。
func (m *MemoryStore) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *MemoryStore) Capacity() int64 {
	return m.capacity
}

// Stats 返回内存层快照。
func (m *MemoryStore) Stats() TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Capacity = m.capacity
	stats.Size = m.size
	stats.Items = len(m.entries)
	return stats
}

// evict 调用方需持有 m.mu。排序一次后从最久未用的条目开始移除。
func (m *MemoryStore) evict() {
	if m.size <= m.capacity {
		return
	}
	ordered := make([]*memoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		ordered = append(ordered, entry)
	}
	sortLeastRecentlyUsed(ordered)

	for _, oldest := range ordered {
		if m.size <= m.capacity {
			break
		}
		delete(m.entries, oldest.key)
		m.size -= oldest.size
		m.stats.Evictions++
		m.logger.WithFields(logrus.Fields{
			"action": "memory_evict",
			"key":    oldest.key,
			"size":   humanize.Bytes(uint64(oldest.size)),
		}).Info("removing file from memory cache")
	}
}
