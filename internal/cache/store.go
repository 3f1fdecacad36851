package cache

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"
)

// Store 负责管理资源缓存的读写。磁盘布局遵循：
//
//	<CacheRoot>/<segment>/.../<leaf name>
//
// 文件存在即代表下载完成且已通过校验。
type Store interface {
	// Root 返回缓存根目录的绝对路径。
	Root() string

	// Exists 判断 path 对应的正文文件是否已落盘，目录不算命中。
	Exists(ctx context.Context, path string) (bool, error)

	// Open 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Open(ctx context.Context, path string) (*ReadResult, error)

	// Put 将正文写入临时文件，边写边计算摘要；校验通过后 rename 到目标位置。
	// 校验失败时删除临时文件并返回 *ChecksumError。
	Put(ctx context.Context, path string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，文件不存在时视为成功。
	Remove(ctx context.Context, path string) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
	// Checksum 为空时跳过校验；比较时忽略大小写。
	Checksum string
	// NewHash 为空时使用 MD5。
	NewHash func() hash.Hash
}

// Entry 表示一次落盘结果，包含绝对文件路径及文件信息。
type Entry struct {
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	Digest    string    `json:"digest"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrOutsideRoot 表示路径逃逸出缓存根目录。
var ErrOutsideRoot = errors.New("path outside cache root")

// ChecksumError 记录期望与实际摘要，临时文件此时已被清理。
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}
