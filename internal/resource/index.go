package resource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseIndex 读取逗号分隔的资源索引，每行至少包含标识符、远端定位串与摘要，
// 多余字段忽略。
func ParseIndex(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var records []Record
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read resource index: %w", err)
		}
		if len(fields) < 3 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("resource index line %d: expected at least 3 fields, got %d", line, len(fields))
		}
		records = append(records, Record{
			ResID:         strings.TrimSpace(fields[0]),
			RemoteLocator: strings.TrimSpace(fields[1]),
			Checksum:      strings.TrimSpace(fields[2]),
		})
	}
}

// LoadIndex 从文件读取资源索引。
func LoadIndex(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open resource index: %w", err)
	}
	defer f.Close()
	return ParseIndex(f)
}

// LoadTree 读取索引文件并构建树，被覆盖或被跳过的记录写入日志。
func LoadTree(indexPath, cacheRoot string, logger *logrus.Logger) (*Tree, error) {
	records, err := LoadIndex(indexPath)
	if err != nil {
		return nil, err
	}
	tree, report := BuildTree(cacheRoot, records)

	for _, id := range report.Duplicates {
		logger.WithFields(logrus.Fields{"action": "build_tree", "res_id": id}).Warn("duplicate_resource_id")
	}
	for _, id := range report.Conflicts {
		logger.WithFields(logrus.Fields{"action": "build_tree", "res_id": id}).Warn("conflicting_resource_id")
	}
	for _, id := range report.Invalid {
		logger.WithFields(logrus.Fields{"action": "build_tree", "res_id": id}).Warn("invalid_resource_id")
	}
	logger.WithFields(logrus.Fields{
		"action":     "build_tree",
		"index":      indexPath,
		"records":    len(records),
		"leaves":     tree.Len(),
		"duplicates": len(report.Duplicates),
		"skipped":    len(report.Conflicts) + len(report.Invalid),
	}).Info("resource_tree_built")
	return tree, nil
}
