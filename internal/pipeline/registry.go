package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stage 是一个可独立运行的提取阶段。
type Stage interface {
	Run(ctx context.Context, env *Env) error
}

// StageFunc 让普通函数实现 Stage。
type StageFunc func(ctx context.Context, env *Env) error

// Run 调用 f。
func (f StageFunc) Run(ctx context.Context, env *Env) error {
	return f(ctx, env)
}

// StageMetadata 描述一个已注册阶段。Order 越小越先执行。
type StageMetadata struct {
	Key         string
	Order       int
	Description string
	Stage       Stage
}

var globalRegistry = newRegistry()

type registry struct {
	mu     sync.RWMutex
	stages map[string]StageMetadata
}

func newRegistry() *registry {
	return &registry{stages: make(map[string]StageMetadata)}
}

// Register 将阶段加入全局注册表，重复键会返回错误。
func Register(meta StageMetadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合阶段包 init() 中调用。
func MustRegister(meta StageMetadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的阶段。
func Resolve(key string) (StageMetadata, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按执行顺序排列的阶段列表。
func List() []StageMetadata {
	return globalRegistry.list()
}

// Keys 返回按执行顺序排列的阶段键。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(meta StageMetadata) error {
	key := normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("stage key is required")
	}
	if meta.Stage == nil {
		return fmt.Errorf("stage %s has no implementation", key)
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[key]; exists {
		return fmt.Errorf("stage %s already registered", key)
	}
	r.stages[key] = meta
	return nil
}

func (r *registry) resolve(key string) (StageMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.stages[normalizeKey(key)]
	return meta, ok
}

func (r *registry) list() []StageMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]StageMetadata, 0, len(r.stages))
	for _, meta := range r.stages {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Key < result[j].Key
	})
	return result
}
