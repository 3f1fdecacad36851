package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "bundle.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	normalizePolicies(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []*string{&cfg.Global.WorkspacePath, &cfg.Global.CacheRoot, &cfg.Global.OutputRoot} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("无法解析目录 %s: %w", *p, err)
		}
		*p = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5100)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("WorkspacePath", "./data/bundle-ws")
	v.SetDefault("CacheRoot", "./data/bundle-cache")
	v.SetDefault("OutputRoot", "./data/bundle")
	v.SetDefault("MaxConcurrency", 4)
	v.SetDefault("MaxAttempts", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MaxBackoff", "30s")
	v.SetDefault("UpstreamTimeout", "60s")
	v.SetDefault("VerifyOnHit", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5100
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.MaxBackoff.DurationValue() == 0 {
		g.MaxBackoff = Duration(30 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(60 * time.Second)
	}
	for i := range g.Skip {
		g.Skip[i] = strings.ToLower(strings.TrimSpace(g.Skip[i]))
	}
}

func normalizePolicies(cfg *Config) {
	if len(cfg.Validation) == 0 {
		return
	}
	normalized := make(map[string]string, len(cfg.Validation))
	for domain, policy := range cfg.Validation {
		normalized[strings.ToLower(strings.TrimSpace(domain))] = strings.ToLower(strings.TrimSpace(policy))
	}
	cfg.Validation = normalized
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
