package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/version"
)

var (
	// ErrUpstreamRejected 表示上游返回 4xx，不重试，也不会写入缓存。
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrUpstreamUnavailable 表示网络失败或 5xx，已按配置重试。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Options 控制重试、限流与熔断。
type Options struct {
	MaxRetries       int
	InitialBackoff   time.Duration
	RateLimit        float64
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// OptionsFromConfig 从全局配置提取上游参数。
func OptionsFromConfig(g config.GlobalConfig) Options {
	return Options{
		MaxRetries:     g.MaxRetries,
		InitialBackoff: g.InitialBackoff.DurationValue(),
		RateLimit:      g.UpstreamRateLimit,
		Burst:          g.UpstreamBurst,
	}
}

type response struct {
	status int
	body   []byte
}

// Fetcher 通过 HTTP GET 从上游源获取制品，作为 cache.Producer 使用。
type Fetcher struct {
	client  *http.Client
	logger  logrus.FieldLogger
	limiter *rate.Limiter
	retrier retry.Retry[*response]
	opts    Options

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[*response]
}

// NewFetcher 构造上游客户端。RateLimit 为 0 表示不限流。
func NewFetcher(client *http.Client, logger logrus.FieldLogger, opts Options) *Fetcher {
	if client == nil {
		client = NewClient(nil)
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Fetcher{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(limit, opts.Burst),
		retrier: retry.New[*response](retry.Config{
			MaxAttempts:   opts.MaxRetries + 1,
			InitialDelay:  opts.InitialBackoff,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
		}),
		opts:     opts,
		breakers: make(map[string]circuitbreaker.CircuitBreaker[*response]),
	}
}

// Producer 返回获取 source 下 name 的 cache.Producer。
func (f *Fetcher) Producer(source Source, name string) cache.Producer {
	return func(ctx context.Context) (any, error) {
		return f.Fetch(ctx, source, name)
	}
}

// Fetch 获取制品正文。4xx 直接返回 ErrUpstreamRejected；网络错误与 5xx 会重试。
func (f *Fetcher) Fetch(ctx context.Context, source Source, name string) ([]byte, error) {
	target := source.URL(name)
	started := time.Now()

	resp, err := f.breaker(source.Name).Execute(ctx, func(ctx context.Context) (*response, error) {
		return f.retrier.Do(ctx, func(ctx context.Context) (*response, error) {
			return f.attempt(ctx, source, target)
		})
	})

	fields := logrus.Fields{
		"action":   "upstream_fetch",
		"source":   source.Name,
		"upstream": target,
		"elapsed":  time.Since(started).String(),
	}
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Warn("upstream fetch failed")
		if errors.Is(err, ErrUpstreamUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	fields["status"] = resp.status
	if resp.status >= 400 {
		f.logger.WithFields(fields).Info("upstream rejected request")
		return nil, fmt.Errorf("%w: status %d for %s", ErrUpstreamRejected, resp.status, target)
	}
	fields["bytes"] = len(resp.body)
	f.logger.WithFields(fields).Debug("upstream fetch completed")
	return resp.body, nil
}

// BreakerState 返回 source 对应熔断器的状态，未创建时为 unknown。
func (f *Fetcher) BreakerState(sourceName string) string {
	f.mu.Lock()
	breaker, ok := f.breakers[sourceName]
	f.mu.Unlock()
	if !ok {
		return "unknown"
	}
	return breaker.State().String()
}

// attempt 执行一次请求。4xx 作为正常结果返回，避免触发重试与熔断。
func (f *Fetcher) attempt(ctx context.Context, source Source, target string) (*response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if source.Username != "" && source.Password != "" {
		req.SetBasicAuth(source.Username, source.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
		}
		return &response{status: resp.StatusCode, body: body}, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return &response{status: resp.StatusCode}, nil
	}
}

func (f *Fetcher) breaker(sourceName string) circuitbreaker.CircuitBreaker[*response] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if breaker, ok := f.breakers[sourceName]; ok {
		return breaker
	}
	threshold := f.opts.BreakerThreshold
	breaker := circuitbreaker.New[*response](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    f.opts.BreakerTimeout,
		Timeout:     f.opts.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
		},
	})
	f.breakers[sourceName] = breaker
	return breaker
}
