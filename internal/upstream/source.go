package upstream

import (
	"fmt"
	"net/url"

	"github.com/any-hub/any-cache/internal/config"
)

// Source 是解析完成的上游源，Fetcher 只依赖这里的字段。
type Source struct {
	Name     string
	BaseURL  *url.URL
	Username string
	Password string
}

// NewSource 解析配置中的 Upstream 地址。
func NewSource(cfg config.SourceConfig) (Source, error) {
	base, err := url.Parse(cfg.Upstream)
	if err != nil {
		return Source{}, fmt.Errorf("invalid upstream for source %s: %w", cfg.Name, err)
	}
	return Source{
		Name:     cfg.Name,
		BaseURL:  base,
		Username: cfg.Username,
		Password: cfg.Password,
	}, nil
}

// URL 返回 name 在上游的完整地址。
func (s Source) URL(name string) string {
	return s.BaseURL.JoinPath(name).String()
}
