package main

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/proxy"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/server/routes"
	"github.com/any-hub/any-cache/internal/upstream"
)

// appRuntime 持有一次进程生命周期内共享的组件。
type appRuntime struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *server.SourceRegistry
	cacher   *cache.Cacher
	fetcher  *upstream.Fetcher
	metrics  *prometheus.Registry
}

// buildRuntime 按配置组装 SourceRegistry、Cacher、上游 Fetcher 与指标注册表。
func buildRuntime(cfg *config.Config, logger *logrus.Logger) (*appRuntime, error) {
	registry, err := server.NewSourceRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建 Source 注册表失败: %w", err)
	}

	cacher, err := cache.New(cfg.Global.StoragePath,
		cache.WithVerbose(cfg.Global.Verbose),
		cache.WithLogger(logging.Component(logger, "cache")),
		cache.WithMaxDiskCacheSizeMb(cfg.Global.MaxDiskCacheSizeMb),
		cache.WithMaxMemoryCacheSizeMb(cfg.Global.MaxMemoryCacheSizeMb),
		cache.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	fetcher := upstream.NewFetcher(
		upstream.NewClient(cfg),
		logging.Component(logger, "upstream"),
		upstream.OptionsFromConfig(cfg.Global),
	)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		cache.NewCollector(cacher),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &appRuntime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		cacher:   cacher,
		fetcher:  fetcher,
		metrics:  metrics,
	}, nil
}

// newApp 创建挂载制品路由与诊断接口的 Fiber 应用。
func (rt *appRuntime) newApp() (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:    rt.logger,
		Registry:  rt.registry,
		Artifacts: proxy.NewHandler(rt.logger, rt.cacher, rt.fetcher),
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticRoutes(app, routes.Diagnostics{
		Registry: rt.registry,
		Cacher:   rt.cacher,
		Gatherer: rt.metrics,
		Breakers: rt.fetcher,
	})
	return app, nil
}
