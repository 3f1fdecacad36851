// Package localization extracts the meta UI label table (label path to message
// id) and the English/Chinese message texts from the client's localization
// pickles.
package localization

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

const (
	Key = "localization"

	MetaUIFile = "meta_ui_localizations.pb"

	mainPickleResource = "res:/localizationfsd/localization_fsd_main.pickle"
)

func init() {
	pipeline.MustRegister(pipeline.StageMetadata{
		Key:         Key,
		Order:       20,
		Description: "meta UI localization keys and message texts",
		Stage:       pipeline.StageFunc(Run),
	})
}

// Run 生成 meta_ui_localizations.pb 与 localizations.db；资源缺失时记录警告并跳过对应文件。
func Run(ctx context.Context, env *pipeline.Env) error {
	if err := writeMetaUI(ctx, env); err != nil {
		return err
	}
	return writeMessages(ctx, env)
}

func writeMetaUI(ctx context.Context, env *pipeline.Env) error {
	logger := env.StageLogger(Key)

	leaf, err := env.Resources.Download(ctx, mainPickleResource)
	if errors.Is(err, resource.ErrNotFound) {
		logger.WithField("res_id", mainPickleResource).Warn("localization_source_missing")
		return nil
	}
	if err != nil {
		return err
	}

	entries, skipped, err := readMetaUI(leaf.LocalPath)
	if err != nil {
		return fmt.Errorf("%s: %w", mainPickleResource, err)
	}
	if skipped > 0 {
		logger.WithField("skipped", skipped).Warn("labels_skipped")
	}

	dir, err := env.Dir("localizations")
	if err != nil {
		return err
	}
	if _, err := pipeline.WriteOutput(env.Logger, filepath.Join(dir, MetaUIFile), wire.MarshalMetaUI(entries)); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"count": len(entries)}).Info("meta_ui_written")
	return nil
}

// readMetaUI 读取 labels 表，键为 FullPath/label，按键排序返回。
func readMetaUI(path string) ([]wire.MetaUIEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	u := pickle.NewUnpickler(f)
	root, err := u.Load()
	if err != nil {
		return nil, 0, fmt.Errorf("unpickle: %w", err)
	}
	top, ok := root.(*types.Dict)
	if !ok {
		return nil, 0, fmt.Errorf("expected dict at top level, got %T", root)
	}
	rawLabels, ok := top.Get("labels")
	if !ok {
		return nil, 0, errors.New("missing labels table")
	}
	labels, ok := rawLabels.(*types.Dict)
	if !ok {
		return nil, 0, fmt.Errorf("labels: expected dict, got %T", rawLabels)
	}

	entries := make([]wire.MetaUIEntry, 0, len(*labels))
	skipped := 0
	for _, item := range *labels {
		entry, ok := metaUIEntry(item.Value)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, skipped, nil
}

func metaUIEntry(v any) (wire.MetaUIEntry, bool) {
	label, ok := v.(*types.Dict)
	if !ok {
		return wire.MetaUIEntry{}, false
	}
	fullPath, ok1 := dictString(label, "FullPath")
	name, ok2 := dictString(label, "label")
	raw, ok3 := label.Get("messageID")
	if !ok1 || !ok2 || !ok3 {
		return wire.MetaUIEntry{}, false
	}
	id, ok := toInt64(raw)
	if !ok {
		return wire.MetaUIEntry{}, false
	}
	return wire.MetaUIEntry{Key: fullPath + "/" + name, MessageID: id}, true
}

func dictString(d *types.Dict, key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case *big.Int:
		if n.IsInt64() {
			return n.Int64(), true
		}
	}
	return 0, false
}
