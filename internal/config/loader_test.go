package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	_, err := Load(testConfigPath(t, "absent.toml"))
	assert.Error(t, err, "不存在的配置文件应返回错误")
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
CacheRoot = "./data"
InitialBackoff = "boom"
`
	_, err := Load(writeTempConfig(t, cfg))
	assert.Error(t, err, "无效 Duration 应失败")
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	_, err := Load(writeTempConfig(t, `LogLevel = "loud"`))
	assert.Error(t, err, "未知日志级别应失败")
}

func TestLoadResolvesAbsolutePaths(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `CacheRoot = "./relative-cache"`))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.Global.CacheRoot), "CacheRoot 应被转换为绝对路径，得到 %s", cfg.Global.CacheRoot)
}
