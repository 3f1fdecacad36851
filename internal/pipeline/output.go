package pipeline

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// WriteOutput 原子写入 path。内容与已有文件一致时不改动并返回 false。
func WriteOutput(logger *logrus.Logger, path string, data []byte) (bool, error) {
	exists, same, err := sameContent(path, data)
	if err != nil {
		return false, err
	}
	if same {
		logger.WithFields(logrus.Fields{"action": "write_output", "path": path}).Debug("output_unchanged")
		return false, nil
	}
	if exists {
		logger.WithFields(logrus.Fields{"action": "write_output", "path": path}).Warn("output_overwritten")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(dir, ".output-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return false, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	return true, nil
}

// sameContent 流式计算已有文件的 xxhash 并与 data 比较，长度不同时不读取文件。
func sameContent(path string, data []byte) (exists, same bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return true, false, err
	}
	if info.Size() != int64(len(data)) {
		return true, false, nil
	}
	digest := xxhash.New()
	if _, err := io.Copy(digest, f); err != nil {
		return true, false, err
	}
	return true, digest.Sum64() == xxhash.Sum64(data), nil
}

// RemoveStale 删除已存在的输出文件，用于需要重建的数据库。
func RemoveStale(logger *logrus.Logger, path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{"action": "write_output", "path": path}).Warn("output_overwritten")
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return err
	}
}
