package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// NewStore 以 basePath 为根目录构建缓存，fsys 为空时使用真实文件系统。
func NewStore(fsys afero.Fs, basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache root required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return nil, fmt.Errorf("resolve cache root: %w", err)
		}
		basePath = abs
	}
	basePath = filepath.Clean(basePath)

	if err := fsys.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	return &fileStore{
		fs:       fsys,
		basePath: basePath,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一路径并发写入。
type fileStore struct {
	fs       afero.Fs
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(path)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *fileStore) Open(ctx context.Context, path string) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.entryPath(path)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReadResult{
		Entry: Entry{
			FilePath:  filePath,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, path string, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.entryPath(path)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	dir := filepath.Dir(filePath)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := afero.TempFile(s.fs, dir, ".cache-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	newHash := opts.NewHash
	if newHash == nil {
		newHash = md5.New
	}
	hasher := newHash()

	// 摘要在写入过程中同步计算，避免落盘后再读一遍。
	written, err := copyWithContext(ctx, io.MultiWriter(tempFile, hasher), body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if opts.Checksum != "" && !strings.EqualFold(opts.Checksum, digest) {
		_ = s.fs.Remove(tempName)
		return nil, &ChecksumError{Path: filePath, Expected: opts.Checksum, Actual: digest}
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := s.fs.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	return &Entry{
		FilePath:  filePath,
		SizeBytes: written,
		Digest:    digest,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, path string) error {
	filePath, err := s.entryPath(path)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := s.fs.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// entryPath 接受绝对路径或相对缓存根目录的路径，拒绝逃逸根目录的写法。
func (s *fileStore) entryPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("cache path required")
	}
	filePath := path
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(s.basePath, filePath)
	}
	filePath = filepath.Clean(filePath)

	rel, err := filepath.Rel(s.basePath, filePath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return filePath, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
