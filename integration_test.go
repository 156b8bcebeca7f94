package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/proxy"
)

func TestRuntimeServesFromEachTier(t *testing.T) {
	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("module example.com/demo\n"))
	}))
	t.Cleanup(origin.Close)

	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
StoragePath = "%s"
MaxRetries = 0

[[Source]]
Name = "goproxy"
Upstream = "%s"
`, filepath.Join(t.TempDir(), "storage"), origin.URL))

	first := newTestRuntime(t, configPath)
	app, err := first.newApp()
	if err != nil {
		t.Fatalf("构建 Fiber 应用失败: %v", err)
	}

	const target = "/goproxy/example.com/demo/@v/v1.0.0.mod"
	for _, want := range []string{"miss", "memory"} {
		resp, body := doRequest(t, app, target)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("期望 200，得到 %d: %s", resp.StatusCode, body)
		}
		if got := resp.Header.Get(proxy.HeaderCacheHit); got != want {
			t.Fatalf("期望命中层 %s，得到 %s", want, got)
		}
		if body != "module example.com/demo\n" {
			t.Fatalf("响应正文不符: %q", body)
		}
	}

	// 模拟重启：新的运行时只能从磁盘恢复。
	second := newTestRuntime(t, configPath)
	restarted, err := second.newApp()
	if err != nil {
		t.Fatalf("构建 Fiber 应用失败: %v", err)
	}
	resp, _ := doRequest(t, restarted, target)
	if got := resp.Header.Get(proxy.HeaderCacheHit); got != "disk" {
		t.Fatalf("重启后应命中磁盘，得到 %s", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("上游只应被请求一次，实际 %d", hits.Load())
	}
	if second.cacher.Disk().Len() != 1 {
		t.Fatalf("启动扫描应索引已有文件，得到 %d", second.cacher.Disk().Len())
	}

	_, metrics := doRequest(t, restarted, "/-/metrics")
	if !strings.Contains(metrics, `any_cache_hits_total{tier="disk"} 1`) {
		t.Fatalf("指标应记录磁盘命中:\n%s", metrics)
	}
}

func TestRuntimeUnknownSource(t *testing.T) {
	configPath := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"

[[Source]]
Name = "npm"
Upstream = "https://registry.npmjs.org"
`, filepath.Join(t.TempDir(), "storage")))

	rt := newTestRuntime(t, configPath)
	app, err := rt.newApp()
	if err != nil {
		t.Fatalf("构建 Fiber 应用失败: %v", err)
	}
	resp, body := doRequest(t, app, "/pypi/simple/demo/")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("未配置的 Source 应返回 404，得到 %d", resp.StatusCode)
	}
	if !strings.Contains(body, "source_unmapped") {
		t.Fatalf("响应应包含 source_unmapped，得到 %s", body)
	}
}

func newTestRuntime(t *testing.T, configPath string) *appRuntime {
	t.Helper()
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}
	logger.SetOutput(io.Discard)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		t.Fatalf("初始化运行时失败: %v", err)
	}
	if err := rt.cacher.Ready(t.Context()); err != nil {
		t.Fatalf("磁盘扫描失败: %v", err)
	}
	return rt
}

func doRequest(t *testing.T, app *fiber.App, target string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	return resp, string(body)
}
