package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// reservedIdentifier 是诊断接口使用的路径前缀，不能作为 Source 名称。
const reservedIdentifier = "-"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxDiskCacheSizeMb < 0 {
		return newFieldError("Global.MaxDiskCacheSizeMb", "不能为负数")
	}
	if g.MaxMemoryCacheSizeMb < 0 {
		return newFieldError("Global.MaxMemoryCacheSizeMb", "不能为负数")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.UpstreamRateLimit < 0 {
		return newFieldError("Global.UpstreamRateLimit", "不能为负数")
	}

	if len(c.Sources) == 0 {
		return errors.New("至少需要配置一个 Source")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Sources {
		source := &c.Sources[i]
		if err := validateIdentifier(source.Name); err != nil {
			return fmt.Errorf("%s: %w", sourceField(source.Name, "Name"), err)
		}
		if _, exists := seenNames[source.Name]; exists {
			return newFieldError(sourceField(source.Name, "Name"), "重复")
		}
		seenNames[source.Name] = struct{}{}

		if (source.Username == "") != (source.Password == "") {
			return newFieldError(sourceField(source.Name, "Username/Password"), "必须同时提供或同时留空")
		}
		if err := validateUpstream(source.Upstream); err != nil {
			return fmt.Errorf("%s: %w", sourceField(source.Name, "Upstream"), err)
		}
	}

	return nil
}

// validateIdentifier 保证 Name 可以安全地作为缓存目录名与 URL 第一段。
func validateIdentifier(name string) error {
	if name == "" {
		return errors.New("Name 不能为空")
	}
	if name == reservedIdentifier {
		return errors.New("Name 不能为保留前缀 -")
	}
	if name == "." || name == ".." {
		return errors.New("Name 不能是相对路径")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("Name 不允许包含路径分隔符")
	}
	if strings.ContainsAny(name, " \t") {
		return errors.New("Name 不允许包含空格")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
