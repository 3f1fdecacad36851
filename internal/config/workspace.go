package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// 工作区内的固定文件名。
const (
	MetadataFile = "metadata.json"
	StartIniFile = "start.ini"
	ESIFile      = "esi.json"
	LinksFile    = "links.json"
	IndexFile    = "resfileindex.txt"
	FSDDir       = "fsd"
)

// ImageNPCFaction 是图片服务中 NPC 势力图标的模板键，模板含 {faction_id}。
const ImageNPCFaction = "npc-faction"

// Metadata 对应 metadata.json，描述服务器与资源服务地址模板。
type Metadata struct {
	Server          string `mapstructure:"server"`
	ResourceService string `mapstructure:"resource-service"`
	// ImageService 按图片种类给出 URL 模板。
	ImageService map[string]string `mapstructure:"image-service"`
	ServerName   string            `mapstructure:"server-name"`
}

// ImageURL 用 vars 替换 kind 模板中的 {name} 占位符；没有该种类时返回 false。
func (m Metadata) ImageURL(kind string, vars map[string]string) (string, bool) {
	tmpl, ok := m.ImageService[kind]
	if !ok || strings.TrimSpace(tmpl) == "" {
		return "", false
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl), true
}

// GameVersion 对应 start.ini 的 [main] 段。
type GameVersion struct {
	Version string
	Build   string
}

// Workspace 是一次生成所需的全部输入。
type Workspace struct {
	Root     string
	Metadata Metadata
	Game     GameVersion
	// ESI / Links 为原始 JSON，缺失时为空。
	ESI       json.RawMessage
	Links     json.RawMessage
	IndexPath string
	FSDPath   string
}

// LoadWorkspace 读取工作区目录，缺少必需文件时返回 FieldError。
func LoadWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("无法解析工作区目录: %w", err)
	}
	ws := &Workspace{
		Root:      abs,
		IndexPath: filepath.Join(abs, IndexFile),
		FSDPath:   filepath.Join(abs, FSDDir),
	}

	if ws.Metadata, err = loadMetadata(filepath.Join(abs, MetadataFile)); err != nil {
		return nil, err
	}
	if ws.Game, err = loadGameVersion(filepath.Join(abs, StartIniFile)); err != nil {
		return nil, err
	}
	if ws.ESI, err = loadOptionalJSON(filepath.Join(abs, ESIFile)); err != nil {
		return nil, err
	}
	if ws.Links, err = loadOptionalJSON(filepath.Join(abs, LinksFile)); err != nil {
		return nil, err
	}

	if info, err := os.Stat(ws.IndexPath); err != nil || info.IsDir() {
		return nil, newFieldError("Workspace."+IndexFile, "文件不存在")
	}
	if info, err := os.Stat(ws.FSDPath); err != nil || !info.IsDir() {
		return nil, newFieldError("Workspace."+FSDDir, "目录不存在")
	}
	return ws, nil
}

func loadMetadata(path string) (Metadata, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Metadata{}, fmt.Errorf("读取 %s 失败: %w", MetadataFile, err)
	}

	var meta Metadata
	if err := v.Unmarshal(&meta); err != nil {
		return Metadata{}, fmt.Errorf("解析 %s 失败: %w", MetadataFile, err)
	}
	required := map[string]string{
		"server":           meta.Server,
		"resource-service": meta.ResourceService,
		"server-name":      meta.ServerName,
	}
	for _, key := range []string{"server", "resource-service", "server-name"} {
		if strings.TrimSpace(required[key]) == "" {
			return Metadata{}, newFieldError(MetadataFile+"."+key, "不能为空")
		}
	}
	if len(meta.ImageService) == 0 {
		return Metadata{}, newFieldError(MetadataFile+".image-service", "不能为空")
	}
	return meta, nil
}

func loadGameVersion(path string) (GameVersion, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return GameVersion{}, fmt.Errorf("读取 %s 失败: %w", StartIniFile, err)
	}
	game := GameVersion{
		Version: strings.TrimSpace(v.GetString("main.version")),
		Build:   strings.TrimSpace(v.GetString("main.build")),
	}
	if game.Version == "" {
		return GameVersion{}, newFieldError(StartIniFile+".main.version", "不能为空")
	}
	if game.Build == "" {
		return GameVersion{}, newFieldError(StartIniFile+".main.build", "不能为空")
	}
	return game, nil
}

// loadOptionalJSON 读取可选 JSON 文件并确认其合法；保留原始键名大小写。
func loadOptionalJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, newFieldError("Workspace."+filepath.Base(path), "不是合法的 JSON")
	}
	return json.RawMessage(data), nil
}
