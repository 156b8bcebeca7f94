package server

import (
	"errors"
	"fmt"

	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/upstream"
)

// SourceRoute 聚合 Source 配置与解析后的上游地址，供路由/代理层直接复用。
type SourceRoute struct {
	// Config 是 config.toml 中声明的 Source 字段副本。
	Config config.SourceConfig
	// Source 在构造 Registry 时提前解析完成，避免每个请求重复解析 URL。
	Source upstream.Source
}

// SourceRegistry 提供 identifier 到 SourceRoute 的查询能力。
type SourceRegistry struct {
	routes  map[string]*SourceRoute
	ordered []*SourceRoute
}

// NewSourceRegistry 根据配置构建 identifier 映射。调用方应在启动阶段创建一次并复用。
func NewSourceRegistry(cfg *config.Config) (*SourceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &SourceRegistry{
		routes: make(map[string]*SourceRoute, len(cfg.Sources)),
	}

	for _, sourceCfg := range cfg.Sources {
		if sourceCfg.Name == "" {
			return nil, errors.New("source name required")
		}
		if _, exists := registry.routes[sourceCfg.Name]; exists {
			return nil, fmt.Errorf("duplicate source detected for %s", sourceCfg.Name)
		}

		source, err := upstream.NewSource(sourceCfg)
		if err != nil {
			return nil, err
		}

		route := &SourceRoute{Config: sourceCfg, Source: source}
		registry.routes[sourceCfg.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 identifier 查找 SourceRoute，大小写敏感。
func (r *SourceRegistry) Lookup(identifier string) (*SourceRoute, bool) {
	if r == nil || identifier == "" {
		return nil, false
	}
	route, ok := r.routes[identifier]
	return route, ok
}

// List 返回当前注册的 SourceRoute 列表（按配置定义的顺序），用于 /-/sources 输出。
func (r *SourceRegistry) List() []SourceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]SourceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}
