package bundle

import (
	"errors"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
)

// Clean 删除 paths 中存在的文件或目录，不存在的路径忽略。
func Clean(logger *logrus.Logger, paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"action": "clean", "path": p}).Info("removed")
	}
	return nil
}
