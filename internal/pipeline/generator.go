package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Generator 依次运行已注册的阶段。
type Generator struct {
	env    *Env
	stages []StageMetadata
}

// NewGenerator 根据注册表与 skip 集合构建生成器，skip 中出现未注册的键时报错。
func NewGenerator(env *Env, skip map[string]struct{}) (*Generator, error) {
	for key := range skip {
		if _, ok := Resolve(key); !ok {
			return nil, fmt.Errorf("unknown stage %q (available: %v)", key, Keys())
		}
	}
	var stages []StageMetadata
	for _, meta := range List() {
		if _, skipped := skip[meta.Key]; skipped {
			env.Logger.WithFields(logrus.Fields{"action": "stage", "stage": meta.Key}).Info("stage_skipped")
			continue
		}
		stages = append(stages, meta)
	}
	return &Generator{env: env, stages: stages}, nil
}

// Stages 返回将要执行的阶段键。
func (g *Generator) Stages() []string {
	keys := make([]string, len(g.stages))
	for i, meta := range g.stages {
		keys[i] = meta.Key
	}
	return keys
}

// Run 依次执行阶段。某个阶段失败不会阻止后续独立阶段，全部失败汇总后返回。
func (g *Generator) Run(ctx context.Context) error {
	var errs []error
	for _, meta := range g.stages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		logger := g.env.StageLogger(meta.Key)
		logger.Info("stage_started")
		started := time.Now()

		if err := meta.Stage.Run(ctx, g.env); err != nil {
			logger.WithError(err).WithField("elapsed", time.Since(started).String()).Error("stage_failed")
			errs = append(errs, fmt.Errorf("stage %s: %w", meta.Key, err))
			continue
		}
		logger.WithField("elapsed", time.Since(started).String()).Info("stage_finished")
	}
	return errors.Join(errs...)
}
