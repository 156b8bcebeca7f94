package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/config"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 identifier/name/命中层级字段，供制品请求日志复用。
func RequestFields(identifier, name, tier, requestID string) logrus.Fields {
	return logrus.Fields{
		"identifier": identifier,
		"name":       name,
		"cache_tier": tier,
		"cache_hit":  tier == "memory" || tier == "disk",
		"request_id": requestID,
	}
}

// SourceFields 描述一个上游源，不输出凭证本身。
func SourceFields(source config.SourceConfig) logrus.Fields {
	return logrus.Fields{
		"source":    source.Name,
		"upstream":  source.Upstream,
		"auth_mode": source.AuthMode(),
	}
}
