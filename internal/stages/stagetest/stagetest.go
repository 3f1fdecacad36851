// Package stagetest provides an in-memory Resources implementation and an Env
// builder for stage tests.
package stagetest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
)

// Resources 以 map 模拟资源缓存：叶子内容写入临时目录，Decode 结果预先给定。
type Resources struct {
	dir string

	mu        sync.Mutex
	leaves    map[string]*resource.Leaf
	decoded   map[string]any
	failures  map[string]error
	downloads []string
}

var _ pipeline.Resources = (*Resources)(nil)

// NewResources 创建以 t.TempDir() 为缓存目录的资源集合。
func NewResources(t *testing.T) *Resources {
	t.Helper()
	return &Resources{
		dir:      t.TempDir(),
		leaves:   make(map[string]*resource.Leaf),
		decoded:  make(map[string]any),
		failures: make(map[string]error),
	}
}

// Add 写入一个叶子资源。
func (r *Resources) Add(t *testing.T, id string, body []byte) {
	t.Helper()
	rel := strings.TrimPrefix(id, "res:/")
	path := filepath.Join(r.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write %s: %v", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves[id] = &resource.Leaf{Name: filepath.Base(path), LocalPath: path, ResID: id, RemoteLocator: rel}
}

// AddFile 以已有文件内容写入叶子资源。
func (r *Resources) AddFile(t *testing.T, id, src string) {
	t.Helper()
	body, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read %s: %v", src, err)
	}
	r.Add(t, id, body)
}

// SetDecoded 指定 Decode(schemaID, binaryID) 的返回值，以 binaryID 为键。
func (r *Resources) SetDecoded(binaryID string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoded[binaryID] = value
}

// Fail 让访问 id 的操作返回 err。
func (r *Resources) Fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id] = err
}

// Downloads 返回已请求下载的标识符（排序后）。
func (r *Resources) Downloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.downloads...)
	sort.Strings(out)
	return out
}

func (r *Resources) GetLeaf(id string) (*resource.Leaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[id]; ok {
		return nil, err
	}
	leaf, ok := r.leaves[id]
	if !ok {
		return nil, &resource.Error{Kind: resource.KindNotFound, ResID: id}
	}
	return leaf, nil
}

func (r *Resources) Download(ctx context.Context, id string) (*resource.Leaf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	leaf, err := r.GetLeaf(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.downloads = append(r.downloads, id)
	r.mu.Unlock()
	return leaf, nil
}

func (r *Resources) DownloadAll(ctx context.Context, id string) ([]*resource.Leaf, error) {
	leaves, err := r.List(ctx, id, false)
	if err != nil {
		return nil, err
	}
	for _, leaf := range leaves {
		if _, err := r.Download(ctx, leaf.ResID); err != nil {
			return nil, err
		}
	}
	return leaves, nil
}

// List 返回以 id 为前缀的全部叶子，id 无匹配时返回 NotFound。
func (r *Resources) List(ctx context.Context, id string, download bool) ([]*resource.Leaf, error) {
	if download {
		return r.DownloadAll(ctx, id)
	}
	prefix := strings.TrimSuffix(id, "/") + "/"
	r.mu.Lock()
	var out []*resource.Leaf
	for key, leaf := range r.leaves {
		if strings.HasPrefix(key, prefix) {
			out = append(out, leaf)
		}
	}
	r.mu.Unlock()
	if len(out) == 0 {
		return nil, &resource.Error{Kind: resource.KindNotFound, ResID: id}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResID < out[j].ResID })
	return out, nil
}

func (r *Resources) Decode(ctx context.Context, schemaID, binaryID string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range []string{schemaID, binaryID} {
		if err, ok := r.failures[id]; ok {
			return nil, err
		}
	}
	value, ok := r.decoded[binaryID]
	if !ok {
		return nil, &resource.Error{Kind: resource.KindNotFound, ResID: binaryID}
	}
	return value, nil
}

// Env 组装阶段运行环境，返回日志缓冲便于断言。
type Env struct {
	*pipeline.Env
	Logs *bytes.Buffer
}

// NewEnv 创建 bundle 与 fsd 目录均位于临时目录的环境。
func NewEnv(t *testing.T, res pipeline.Resources, policy string) Env {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	fsdDir := filepath.Join(t.TempDir(), "fsd")
	if err := os.MkdirAll(fsdDir, 0o755); err != nil {
		t.Fatalf("mkdir fsd: %v", err)
	}
	return Env{
		Env: &pipeline.Env{
			BundleRoot: t.TempDir(),
			FSD:        pipeline.NewFSD(fsdDir),
			Resources:  res,
			Workspace: &config.Workspace{
				Metadata: config.Metadata{Server: "tq", ServerName: "Tranquility"},
				FSDPath:  fsdDir,
			},
			Logger: logger,
			RunID:  "test-run",
			Policy: func(string) string {
				if policy == "" {
					return config.PolicySkip
				}
				return policy
			},
		},
		Logs: logs,
	}
}

// WriteFSD 写入 fsd/<name>.json。
func (e Env) WriteFSD(t *testing.T, name, body string) {
	t.Helper()
	path := filepath.Join(e.Workspace.FSDPath, name+".json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fsd %s: %v", name, err)
	}
}
