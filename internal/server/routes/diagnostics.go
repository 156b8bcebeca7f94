package routes

import (
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/server"
)

// BreakerReporter 报告上游熔断器状态，nil 时 /-/sources 不输出该字段。
type BreakerReporter interface {
	BreakerState(sourceName string) string
}

// Diagnostics 汇总诊断接口依赖。
type Diagnostics struct {
	Registry *server.SourceRegistry
	Cacher   *cache.Cacher
	Gatherer prometheus.Gatherer
	Breakers BreakerReporter
}

// RegisterDiagnosticRoutes 暴露 /-/stats、/-/sources 与 /-/metrics，供 SRE 查询缓存水位与源配置。
func RegisterDiagnosticRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil || diag.Registry == nil || diag.Cacher == nil {
		return
	}

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(encodeStats(diag.Cacher.Stats()))
	})

	app.Get("/-/sources", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources": encodeSources(diag.Registry.List(), diag.Breakers),
		})
	})

	if diag.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(diag.Gatherer, promhttp.HandlerOpts{})))
	}
}

type tierPayload struct {
	Capacity      string  `json:"capacity"`
	CapacityBytes int64   `json:"capacity_bytes"`
	Size          string  `json:"size"`
	SizeBytes     int64   `json:"size_bytes"`
	Items         int     `json:"items"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Evictions     int64   `json:"evictions"`
}

type statsPayload struct {
	Memory        tierPayload `json:"memory"`
	Disk          tierPayload `json:"disk"`
	Requests      int64       `json:"requests"`
	ProducerCalls int64       `json:"producer_calls"`
	Bypassed      int64       `json:"bypassed"`
	Failures      int64       `json:"failures"`
	Pending       int         `json:"pending"`
}

type sourcePayload struct {
	Name         string `json:"name"`
	Upstream     string `json:"upstream"`
	AuthMode     string `json:"auth_mode"`
	BreakerState string `json:"breaker_state,omitempty"`
}

func encodeStats(stats cache.Stats) statsPayload {
	return statsPayload{
		Memory:        encodeTier(stats.Memory),
		Disk:          encodeTier(stats.Disk),
		Requests:      stats.Requests,
		ProducerCalls: stats.ProducerCalls,
		Bypassed:      stats.Bypassed,
		Failures:      stats.Failures,
		Pending:       stats.Pending,
	}
}

func encodeTier(t cache.TierStats) tierPayload {
	return tierPayload{
		Capacity:      humanize.Bytes(uint64(max(t.Capacity, 0))),
		CapacityBytes: t.Capacity,
		Size:          humanize.Bytes(uint64(max(t.Size, 0))),
		SizeBytes:     t.Size,
		Items:         t.Items,
		Hits:          t.Hits,
		Misses:        t.Misses,
		HitRate:       t.HitRate(),
		Evictions:     t.Evictions,
	}
}

func encodeSources(routes []server.SourceRoute, breakers BreakerReporter) []sourcePayload {
	result := make([]sourcePayload, 0, len(routes))
	for _, route := range routes {
		item := sourcePayload{
			Name:     route.Config.Name,
			Upstream: route.Config.Upstream,
			AuthMode: route.Config.AuthMode(),
		}
		if breakers != nil {
			item.BreakerState = breakers.BreakerState(route.Config.Name)
		}
		result = append(result, item)
	}
	return result
}
