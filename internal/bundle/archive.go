package bundle

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
)

// Package 将 bundleRoot 下的全部文件打包到 outputFile（Deflate），返回写入的文件数。
// 先写临时文件再 rename，失败时不会留下半成品。
func Package(ctx context.Context, logger *logrus.Logger, bundleRoot, outputFile string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outputFile), ".bundle-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	count, err := writeArchive(ctx, tmp, bundleRoot)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if _, statErr := os.Stat(outputFile); statErr == nil {
		logger.WithFields(logrus.Fields{"action": "package", "path": outputFile}).Warn("bundle_overwritten")
	}
	if err := os.Rename(tmpName, outputFile); err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	logger.WithFields(logrus.Fields{
		"action": "package",
		"path":   outputFile,
		"files":  count,
	}).Info("bundle_packaged")
	return count, nil
}

func writeArchive(ctx context.Context, w io.Writer, root string) (int, error) {
	zw := zip.NewWriter(w)
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("pack %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	return count, zw.Close()
}
