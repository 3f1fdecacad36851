package localization

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
)

const (
	MessagesFile = "localizations.db"

	englishPickleResource = "res:/localizationfsd/localization_fsd_en-us.pickle"
	chinesePickleResource = "res:/localizationfsd/localization_fsd_zh.pickle"
)

const messagesSchema = `
CREATE TABLE localization (
	key INTEGER PRIMARY KEY,
	en TEXT NOT NULL,
	zh TEXT NOT NULL
);
`

// writeMessages 以英文表的键为准写出 localization(key, en, zh)，缺少中文时留空。
func writeMessages(ctx context.Context, env *pipeline.Env) error {
	en, err := loadMessages(ctx, env, englishPickleResource)
	if en == nil || err != nil {
		return err
	}
	zh, err := loadMessages(ctx, env, chinesePickleResource)
	if err != nil {
		return err
	}

	dir, err := env.Dir("localizations")
	if err != nil {
		return err
	}
	keys := slices.Sorted(maps.Keys(en))
	err = pipeline.WriteDatabase(env.Logger, filepath.Join(dir, MessagesFile), messagesSchema, func(conn *sqlite.Conn) error {
		for _, key := range keys {
			if err := pipeline.Exec(conn, "INSERT INTO localization (key, en, zh) VALUES (?, ?, ?)", key, en[key], zh[key]); err != nil {
				return fmt.Errorf("insert message %d: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithFields(logrus.Fields{"count": len(keys), "zh": len(zh)}).Info("messages_written")
	return nil
}

// loadMessages 下载并解析一个语言包；资源缺失时返回 nil, nil。
func loadMessages(ctx context.Context, env *pipeline.Env, resID string) (map[int64]string, error) {
	leaf, err := env.Resources.Download(ctx, resID)
	if errors.Is(err, resource.ErrNotFound) {
		env.StageLogger(Key).WithField("res_id", resID).Warn("localization_source_missing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	messages, err := readMessages(leaf.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resID, err)
	}
	return messages, nil
}

// readMessages 解析 (language, {messageID: (text, ...)}) 形式的语言包。
func readMessages(path string) (map[int64]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	u := pickle.NewUnpickler(f)
	root, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("unpickle: %w", err)
	}
	top, ok := root.(*types.Tuple)
	if !ok || top.Len() < 2 {
		return nil, fmt.Errorf("expected (language, messages) tuple, got %T", root)
	}
	table, ok := top.Get(1).(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("messages: expected dict, got %T", top.Get(1))
	}

	out := make(map[int64]string, len(*table))
	for _, item := range *table {
		key, ok := toInt64(item.Key)
		if !ok {
			return nil, fmt.Errorf("message key %v is not an integer", item.Key)
		}
		out[key] = messageText(item.Value)
	}
	return out, nil
}

// messageText 取元组首项文本，None 或其它形状视为空串。
func messageText(v any) string {
	t, ok := v.(*types.Tuple)
	if !ok || t.Len() == 0 {
		return ""
	}
	s, _ := t.Get(0).(string)
	return s
}
