package cache

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxDiskCacheSizeMb 是未配置时的磁盘层预算。
	DefaultMaxDiskCacheSizeMb = 1000
	// DefaultMaxMemoryCacheSizeMb 是未配置时的内存层预算。
	DefaultMaxMemoryCacheSizeMb = 300
)

type settings struct {
	verbose        bool
	logger         logrus.FieldLogger
	maxDiskMb      float64
	maxMemoryMb    float64
	tracerProvider trace.TracerProvider
}

// Option 调整 Cacher 的构造参数。
type Option func(*settings)

// WithVerbose 打开日志输出；关闭时所有日志被丢弃。
func WithVerbose(verbose bool) Option {
	return func(s *settings) { s.verbose = verbose }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMaxDiskCacheSizeMb 设置磁盘层预算，0 表示不保留任何文件。
func WithMaxDiskCacheSizeMb(mb float64) Option {
	return func(s *settings) { s.maxDiskMb = mb }
}

// WithMaxMemoryCacheSizeMb 设置内存层预算，0 表示不保留任何条目。
func WithMaxMemoryCacheSizeMb(mb float64) Option {
	return func(s *settings) { s.maxMemoryMb = mb }
}

// WithTracerProvider 指定 span 的来源，默认使用全局 provider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) { s.tracerProvider = tp }
}

// GetOption 调整单次 Get/Lookup。
type GetOption func(*getSettings)

type getSettings struct {
	useCache bool
}

// SkipCache 跳过两层缓存的读写，直接调用 producer（仍参与请求合并）。
func SkipCache() GetOption {
	return func(s *getSettings) { s.useCache = false }
}
