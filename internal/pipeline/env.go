package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/logging"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
)

// Resources 是阶段访问游戏资源的接口，由 resource.Cache 实现。
type Resources interface {
	GetLeaf(id string) (*resource.Leaf, error)
	Download(ctx context.Context, id string) (*resource.Leaf, error)
	DownloadAll(ctx context.Context, id string) ([]*resource.Leaf, error)
	List(ctx context.Context, id string, download bool) ([]*resource.Leaf, error)
	Decode(ctx context.Context, schemaID, binaryID string) (any, error)
}

var _ Resources = (*resource.Cache)(nil)

// Env 是阶段运行时可用的全部依赖。
type Env struct {
	BundleRoot string
	FSD        *FSD
	Resources  Resources
	Workspace  *config.Workspace
	Logger     *logrus.Logger
	RunID      string
	// HTTP 访问图片服务，为 nil 时跳过需要外部图片服务的输出。
	HTTP *http.Client
	// Policy 返回数据域的校验策略，为空时一律 skip。
	Policy func(domain string) string
}

// Dir 返回 bundle 下的子目录并确保其存在。
func (e *Env) Dir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{e.BundleRoot}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// StageLogger 返回带阶段字段的日志入口。
func (e *Env) StageLogger(stage string) *logrus.Entry {
	return e.Logger.WithFields(logging.StageFields(stage, e.RunID))
}

func (e *Env) policyFor(domain string) string {
	if e.Policy == nil {
		return config.PolicySkip
	}
	return e.Policy(domain)
}
