package cache

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/any-hub/any-cache/internal/cache"

// Cacher 组合内存层、磁盘层与请求合并，对外只暴露 Get/Lookup。
type Cacher struct {
	root    string
	logger  logrus.FieldLogger
	tracer  trace.Tracer
	memory  *MemoryStore
	disk    *DiskStore
	pending *Coalescer[Result]

	requests      atomic.Int64
	memoryHits    atomic.Int64
	diskHits      atomic.Int64
	producerCalls atomic.Int64
	bypassed      atomic.Int64
	failures      atomic.Int64
}

// New 以 rootDirectory 为磁盘层根目录构建 Cacher，并在后台开始目录扫描。
func New(rootDirectory string, opts ...Option) (*Cacher, error) {
	s := settings{
		maxDiskMb:   DefaultMaxDiskCacheSizeMb,
		maxMemoryMb: DefaultMaxMemoryCacheSizeMb,
	}
	for _, opt := range opts {
		opt(&s)
	}

	logger := s.logger
	if logger == nil || !s.verbose {
		logger = discardLogger()
	}
	tp := s.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	disk, err := NewDiskStore(rootDirectory, DiskBudget(s.maxDiskMb), logger)
	if err != nil {
		return nil, err
	}

	return &Cacher{
		root:    disk.Root(),
		logger:  logger,
		tracer:  tp.Tracer(tracerName),
		memory:  NewMemoryStore(MemoryBudget(s.maxMemoryMb), logger),
		disk:    disk,
		pending: NewCoalescer[Result](),
	}, nil
}

// Get 返回 (identifier, name) 的内容，必要时调用 producer 并写入两层缓存。
func (c *Cacher) Get(ctx context.Context, identifier, name string, producer Producer, opts ...GetOption) (string, error) {
	result, err := c.Lookup(ctx, identifier, name, producer, opts...)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// Lookup 与 Get 相同，额外返回命中的层级以及结果是否与他人共享。
func (c *Cacher) Lookup(ctx context.Context, identifier, name string, producer Producer, opts ...GetOption) (Result, error) {
	gs := getSettings{useCache: true}
	for _, opt := range opts {
		opt(&gs)
	}
	key := Key{Identifier: identifier, Name: name}

	ctx, span := c.tracer.Start(ctx, "cache.Lookup", trace.WithAttributes(
		attribute.String("cache.identifier", identifier),
		attribute.String("cache.name", name),
		attribute.Bool("cache.use_cache", gs.useCache),
	))
	defer span.End()
	c.requests.Add(1)

	result, err := c.lookup(ctx, key, producer, gs.useCache)
	if err != nil {
		c.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("cache.tier", string(result.Tier)),
		attribute.Bool("cache.shared", result.Shared),
	)
	return result, nil
}

func (c *Cacher) lookup(ctx context.Context, key Key, producer Producer, useCache bool) (Result, error) {
	if producer == nil {
		return Result{}, ErrNilProducer
	}
	if useCache {
		if content, ok := c.memory.Get(key.String()); ok {
			c.memoryHits.Add(1)
			return Result{Content: content, Tier: TierMemory}, nil
		}
	}

	filePath, err := resolvePath(c.root, key)
	if err != nil {
		return Result{}, err
	}

	result, shared, err := c.pending.Do(ctx, filePath, func(ctx context.Context) (Result, error) {
		if !useCache {
			return c.produce(ctx, key, filePath, producer, false)
		}
		return c.resolve(ctx, key, filePath, producer)
	})
	if err != nil {
		return Result{}, err
	}
	result.Shared = shared
	return result, nil
}

// resolve 先查磁盘，缺失时回落到 producer。
func (c *Cacher) resolve(ctx context.Context, key Key, filePath string, producer Producer) (Result, error) {
	_, ok, err := statRegular(filePath)
	if err != nil {
		c.logError("failed to stat cached file", err)
		return Result{}, err
	}
	if !ok {
		c.disk.recordMiss()
		c.logger.WithFields(logrus.Fields{
			"action": "disk_miss",
			"path":   filePath,
		}).Debug("file does not exist in file system cache")
		return c.produce(ctx, key, filePath, producer, true)
	}

	content, err := readContent(filePath)
	if err != nil {
		c.logError("failed to read cached file", err)
		return Result{}, err
	}
	c.disk.recordHit()
	c.diskHits.Add(1)
	c.logger.WithFields(logrus.Fields{
		"action": "disk_hit",
		"path":   filePath,
	}).Debug("file found in file system cache")
	c.memory.Set(key.String(), content)
	return Result{Content: content, Tier: TierDisk}, nil
}

func (c *Cacher) produce(ctx context.Context, key Key, filePath string, producer Producer, useCache bool) (Result, error) {
	c.producerCalls.Add(1)
	raw, err := callProducer(ctx, producer)
	if err != nil {
		perr := &ProducerError{Key: key, Err: err}
		c.logError("producer failed", perr)
		return Result{}, perr
	}
	content, err := contentOf(raw)
	if err != nil {
		c.logError("producer returned unsupported content", err)
		return Result{}, err
	}

	if !useCache {
		c.bypassed.Add(1)
		return Result{Content: content, Tier: TierBypass}, nil
	}

	c.memory.Set(key.String(), content)
	info, err := writeContent(filePath, content)
	if err != nil {
		c.logError("failed to write cached file", err)
		return Result{}, err
	}
	if err := c.disk.Set(ctx, filePath, info); err != nil {
		c.logError("failed to index cached file", err)
		return Result{}, err
	}
	return Result{Content: content, Tier: TierMiss}, nil
}

// callProducer 把 producer 的 panic 转换为错误，避免合并等待者永远阻塞。
func callProducer(ctx context.Context, producer Producer) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return producer(ctx)
}

// Path 返回 (identifier, name) 在磁盘层中的绝对路径。
func (c *Cacher) Path(identifier, name string) (string, error) {
	return resolvePath(c.root, Key{Identifier: identifier, Name: name})
}

// Root 返回磁盘层根目录。
func (c *Cacher) Root() string {
	return c.root
}

// Ready 等待磁盘层启动扫描完成。
func (c *Cacher) Ready(ctx context.Context) error {
	return c.disk.Ready(ctx)
}

func (c *Cacher) Memory() *MemoryStore {
	return c.memory
}

func (c *Cacher) Disk() *DiskStore {
	return c.disk
}

// Stats 汇总两层缓存与请求计数。
func (c *Cacher) Stats() Stats {
	return Stats{
		Memory:        c.memory.Stats(),
		Disk:          c.disk.Stats(),
		Requests:      c.requests.Load(),
		MemoryHits:    c.memoryHits.Load(),
		DiskHits:      c.diskHits.Load(),
		ProducerCalls: c.producerCalls.Load(),
		Bypassed:      c.bypassed.Load(),
		Failures:      c.failures.Load(),
		Pending:       c.pending.Pending(),
	}
}

func (c *Cacher) logError(msg string, err error) {
	c.logger.WithFields(logrus.Fields{"action": "cache_error"}).WithError(err).Error(msg)
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
