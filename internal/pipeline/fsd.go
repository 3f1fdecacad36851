package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrFSDNotFound 表示工作区中缺少对应的 FSD 文件。
var ErrFSDNotFound = errors.New("fsd file not found")

// FSD 读取工作区 fsd/<name>.json，结果按名字缓存，可并发使用。
type FSD struct {
	dir string

	mu    sync.Mutex
	cache map[string]map[string]any
}

// NewFSD 以 dir 为 FSD 目录。
func NewFSD(dir string) *FSD {
	return &FSD{dir: dir, cache: make(map[string]map[string]any)}
}

// Get 返回 name 对应的顶层对象（键为记录 ID）。数字保留为 json.Number。
func (f *FSD) Get(name string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if data, ok := f.cache[name]; ok {
		return data, nil
	}

	raw, err := os.ReadFile(filepath.Join(f.dir, name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFSDNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	data, err := decodeJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fsd %s: %w", name, err)
	}
	f.cache[name] = data
	return data, nil
}

func decodeJSONObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// OptionalFSD 读取可缺省的 FSD 文件：缺失时记录警告并返回 nil, nil。
func (e *Env) OptionalFSD(stage, name string) (map[string]any, error) {
	data, err := e.FSD.Get(name)
	if errors.Is(err, ErrFSDNotFound) {
		e.StageLogger(stage).WithField("fsd", name).Warn("fsd_missing")
		return nil, nil
	}
	return data, err
}
