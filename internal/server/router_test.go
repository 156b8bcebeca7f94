package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/config"
)

func TestRouterRoutesRequestWhenSourceMatches(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "http://cache.local/npm/react/-/react-18.2.0.tgz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}

	if app.recorder.routeName != "npm" {
		t.Fatalf("expected npm route, got %s", app.recorder.routeName)
	}
	if app.recorder.name != "react/-/react-18.2.0.tgz" {
		t.Fatalf("expected wildcard name, got %s", app.recorder.name)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterReturns404WhenSourceUnknown(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "http://cache.local/rubygems/rails.gem", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"source_unmapped"`)) {
		t.Fatalf("expected source_unmapped error, got %s", string(body))
	}
	if app.recorder.routeName != "" {
		t.Fatalf("handler must not run for unknown sources")
	}
}

func TestRouterSkipsDiagnosticsPaths(t *testing.T) {
	app := newTestApp(t)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://cache.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("expected diagnostics route to answer, got %d %s", resp.StatusCode, string(body))
	}
}

func TestIdentifierFromPath(t *testing.T) {
	cases := map[string]string{
		"/npm/react.tgz": "npm",
		"/npm":           "npm",
		"/":              "",
		"/go/a/b/c":      "go",
	}
	for path, want := range cases {
		if got := identifierFromPath(path); got != want {
			t.Fatalf("identifierFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	logger := logrus.New()
	if _, err := NewApp(AppOptions{Registry: &SourceRegistry{}, Artifacts: ArtifactHandlerFunc(nil)}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Artifacts: ArtifactHandlerFunc(nil)}); err == nil {
		t.Fatalf("expected error without registry")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Registry: &SourceRegistry{}}); err == nil {
		t.Fatalf("expected error without artifact handler")
	}
}

type testApp struct {
	*fiber.App
	recorder *artifactRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000},
		Sources: []config.SourceConfig{
			{
				Name:     "npm",
				Upstream: "https://registry.npmjs.org",
			},
		},
	}

	registry, err := NewSourceRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &artifactRecorder{}
	app, err := NewApp(AppOptions{
		Logger:    logger,
		Registry:  registry,
		Artifacts: recorder,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder}
}

type artifactRecorder struct {
	routeName string
	name      string
}

func (p *artifactRecorder) Handle(c fiber.Ctx, route *SourceRoute) error {
	p.routeName = route.Config.Name
	p.name = c.Params("*")
	return c.SendStatus(fiber.StatusNoContent)
}
