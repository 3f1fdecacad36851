package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
)

// DescriptorFile 是 bundle 根目录下的描述文件名。
const DescriptorFile = "bundle.descriptor"

// Descriptor 描述 bundle 来源与生成时间。
type Descriptor struct {
	Server     string      `json:"server"`
	ServerName string      `json:"server-name"`
	Created    string      `json:"created"`
	Game       GameVersion `json:"game"`
	RunID      string      `json:"run-id"`
}

// GameVersion 是客户端版本信息。
type GameVersion struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

// NewDescriptor 由工作区信息构造描述。
func NewDescriptor(ws *config.Workspace, runID string, now time.Time) Descriptor {
	return Descriptor{
		Server:     ws.Metadata.Server,
		ServerName: ws.Metadata.ServerName,
		Created:    now.UTC().Format(time.RFC3339),
		Game:       GameVersion{Version: ws.Game.Version, Build: ws.Game.Build},
		RunID:      runID,
	}
}

// WriteDescriptor 写入 bundle.descriptor。
func WriteDescriptor(logger *logrus.Logger, bundleRoot string, d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return err
	}
	_, err = pipeline.WriteOutput(logger, filepath.Join(bundleRoot, DescriptorFile), data)
	return err
}

// WriteConfigs 复制 esi.json 与 links.json，缺失的文件记录错误日志后跳过。
func WriteConfigs(logger *logrus.Logger, bundleRoot string, ws *config.Workspace) error {
	for _, item := range []struct {
		name string
		raw  json.RawMessage
	}{
		{config.ESIFile, ws.ESI},
		{config.LinksFile, ws.Links},
	} {
		if len(item.raw) == 0 {
			logger.WithFields(logrus.Fields{"action": "write_config", "file": item.name}).Error("config_missing")
			continue
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, item.raw, "", "    "); err != nil {
			return fmt.Errorf("format %s: %w", item.name, err)
		}
		if _, err := pipeline.WriteOutput(logger, filepath.Join(bundleRoot, item.name), buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
