package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入生成流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if strings.TrimSpace(g.WorkspacePath) == "" {
		return newFieldError("Global.WorkspacePath", "不能为空")
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if strings.TrimSpace(g.OutputRoot) == "" {
		return newFieldError("Global.OutputRoot", "不能为空")
	}
	if g.MaxConcurrency <= 0 {
		return newFieldError("Global.MaxConcurrency", "必须大于 0")
	}
	if g.MaxAttempts < 1 {
		return newFieldError("Global.MaxAttempts", "至少为 1")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.MaxBackoff.DurationValue() < g.InitialBackoff.DurationValue() {
		return newFieldError("Global.MaxBackoff", "不能小于 InitialBackoff")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	for domain, policy := range c.Validation {
		switch policy {
		case PolicyFatal, PolicySkip:
		default:
			return newFieldError(validationField(domain), fmt.Sprintf("仅支持 %s/%s", PolicyFatal, PolicySkip))
		}
	}

	return nil
}
