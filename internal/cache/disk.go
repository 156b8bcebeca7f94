package cache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// FileRecord 描述一个驻留在磁盘层的文件。LastUsedAt 只在记录创建时设置。
type FileRecord struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`

	seq uint64
}

func (r *FileRecord) lastUsed() time.Time { return r.LastUsedAt }
func (r *FileRecord) order() uint64       { return r.seq }

// DiskStore 是按字节计量、LRU 淘汰的磁盘层索引。启动时扫描 root 重建索引，
// 扫描完成前所有 Set 都会等待。
type DiskStore struct {
	root     string
	capacity int64
	logger   logrus.FieldLogger
	now      func() time.Time
	remove   func(string) error

	ready   chan struct{}
	scanErr error

	mu      sync.Mutex
	records map[string]*FileRecord
	size    int64
	seq     uint64
	stats   TierStats
}

// NewDiskStore 创建 root（若不存在）并在后台启动目录扫描。
func NewDiskStore(root string, capacity int64, logger logrus.FieldLogger) (*DiskStore, error) {
	return openDiskStore(root, capacity, logger, time.Now, os.Remove)
}

func openDiskStore(root string, capacity int64, logger logrus.FieldLogger, now func() time.Time, remove func(string) error) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("root directory required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, ioError("mkdir", abs, err)
	}
	if logger == nil {
		logger = discardLogger()
	}

	d := &DiskStore{
		root:     abs,
		capacity: capacity,
		logger:   logger,
		now:      now,
		remove:   remove,
		ready:    make(chan struct{}),
		records:  make(map[string]*FileRecord),
	}
	go d.scan()
	return d, nil
}

// Root 返回磁盘层根目录的绝对路径。
func (d *DiskStore) Root() string {
	return d.root
}

// Ready 阻塞到启动扫描结束，返回扫描（含首次淘汰）的错误。
func (d *DiskStore) Ready(ctx context.Context) error {
	select {
	case <-d.ready:
		return d.scanErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set 为 path 创建或替换记录并执行淘汰。替换时先扣除旧记录的大小。
func (d *DiskStore) Set(ctx context.Context, path string, info fs.FileInfo) error {
	if err := d.Ready(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.records[path]; ok {
		d.size -= old.Size
	}
	record := d.newRecord(path, info)
	d.records[path] = record
	d.size += record.Size
	d.logger.WithFields(logrus.Fields{
		"action": "disk_set",
		"path":   path,
		"size":   humanize.Bytes(uint64(record.Size)),
	}).Info("saving file in file system cache")

	return d.evict()
}

// Record 返回 path 对应记录的副本。
func (d *DiskStore) Record(path string) (FileRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.records[path]
	if !ok {
		return FileRecord{}, false
	}
	return *record, true
}

// Records 返回按路径排序的记录快照。
func (d *DiskStore) Records() []FileRecord {
	d.mu.Lock()
	out := make([]FileRecord, 0, len(d.records))
	for _, record := range d.records {
		out = append(out, *record)
	}
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b FileRecord) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

func (d *DiskStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func (d *DiskStore) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *DiskStore) Capacity() int64 {
	return d.capacity
}

// Stats 返回磁盘层快照，Hits/Misses 由 Cacher 记录。
func (d *DiskStore) Stats() TierStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.stats
	stats.Capacity = d.capacity
	stats.Size = d.size
	stats.Items = len(d.records)
	return stats
}

func (d *DiskStore) recordHit() {
	d.mu.Lock()
	d.stats.Hits++
	d.mu.Unlock()
}

func (d *DiskStore) recordMiss() {
	d.mu.Lock()
	d.stats.Misses++
	d.mu.Unlock()
}

// newRecord 调用方需持有 d.mu。
func (d *DiskStore) newRecord(path string, info fs.FileInfo) *FileRecord {
	d.seq++
	return &FileRecord{
		Path:       path,
		Size:       info.Size(),
		CreatedAt:  birthTime(path, info),
		LastUsedAt: d.now(),
		seq:        d.seq,
	}
}

func (d *DiskStore) scan() {
	defer close(d.ready)

	started := time.Now()
	type found struct {
		path string
		info fs.FileInfo
	}
	var files []found
	walkErr := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() || isTempName(entry.Name()) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		files = append(files, found{path: path, info: info})
		return nil
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	if walkErr != nil {
		d.scanErr = ioError("walk", d.root, walkErr)
		d.logger.WithFields(logrus.Fields{
			"action": "disk_scan",
			"root":   d.root,
		}).WithError(walkErr).Error("file system cache scan failed")
		return
	}

	for _, f := range files {
		record := d.newRecord(f.path, f.info)
		d.records[f.path] = record
		d.size += record.Size
	}
	d.logger.WithFields(logrus.Fields{
		"action":   "disk_scan",
		"root":     d.root,
		"files":    len(files),
		"size":     humanize.Bytes(uint64(d.size)),
		"duration": time.Since(started).String(),
	}).Info("file system cache scan completed")

	d.scanErr = d.evict()
}

// evict 调用方需持有 d.mu。先删除文件再移除记录，删除失败时中止本轮淘汰。
func (d *DiskStore) evict() error {
	if d.size <= d.capacity {
		return nil
	}
	ordered := make([]*FileRecord, 0, len(d.records))
	for _, record := range d.records {
		ordered = append(ordered, record)
	}
	sortLeastRecentlyUsed(ordered)

	for _, oldest := range ordered {
		if d.size <= d.capacity {
			break
		}
		if err := d.remove(oldest.Path); err != nil {
			d.logger.WithFields(logrus.Fields{
				"action": "disk_evict",
				"path":   oldest.Path,
			}).WithError(err).Error("failed to remove file from file system cache")
			return ioError("remove", oldest.Path, err)
		}
		delete(d.records, oldest.Path)
		d.size -= oldest.Size
		d.stats.Evictions++
		d.logger.WithFields(logrus.Fields{
			"action": "disk_evict",
			"path":   oldest.Path,
			"size":   humanize.Bytes(uint64(oldest.Size)),
		}).Info("removing file from file system cache")
	}
	return nil
}

// isTempName 识别 writeContent 遗留的临时文件，它们不属于任何缓存键。
func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}
