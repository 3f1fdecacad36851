package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 校验策略：fatal 遇到非法记录时中止当前阶段，skip 记录日志后跳过。
const (
	PolicyFatal = "fatal"
	PolicySkip  = "skip"
)

// GlobalConfig 描述生成器的运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	WorkspacePath   string   `mapstructure:"WorkspacePath"`
	CacheRoot       string   `mapstructure:"CacheRoot"`
	OutputRoot      string   `mapstructure:"OutputRoot"`
	MaxConcurrency  int      `mapstructure:"MaxConcurrency"`
	MaxAttempts     int      `mapstructure:"MaxAttempts"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	MaxBackoff      Duration `mapstructure:"MaxBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	VerifyOnHit     bool     `mapstructure:"VerifyOnHit"`
	Skip            []string `mapstructure:"Skip"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	// Validation 按数据域（categories、groups、regions…）配置校验策略。
	Validation map[string]string `mapstructure:"Validation"`
}

// PolicyFor 返回数据域的校验策略，未配置时为 skip。
func (c *Config) PolicyFor(domain string) string {
	if p, ok := c.Validation[strings.ToLower(domain)]; ok {
		return p
	}
	return PolicySkip
}

// SkipSet 返回需要跳过的阶段集合。
func (c *Config) SkipSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Global.Skip))
	for _, s := range c.Global.Skip {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// ResourceCacheDir 返回某个服务器的资源缓存目录。
func (c *Config) ResourceCacheDir(server string) string {
	return filepath.Join(c.Global.CacheRoot, server, "index-cache", "resources")
}

// ServerCacheDir 返回某个服务器的全部缓存目录。
func (c *Config) ServerCacheDir(server string) string {
	return filepath.Join(c.Global.CacheRoot, server)
}

// BundleDir 返回打包前的工作目录。
func (c *Config) BundleDir(server string) string {
	return filepath.Join(c.Global.CacheRoot, server, "bundle")
}

// BundleFile 返回最终产物路径。
func (c *Config) BundleFile(server string) string {
	return filepath.Join(c.Global.OutputRoot, server+".bundle")
}
