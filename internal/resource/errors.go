package resource

import (
	"errors"
	"fmt"
)

// ErrorKind 区分资源访问失败的类别。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNotFound 标识符在索引树中不存在。
	KindNotFound
	// KindTypeMismatch 期望叶子却得到目录（或反之）。
	KindTypeMismatch
	// KindNetwork 请求失败或上游返回非 2xx。
	KindNetwork
	// KindChecksum 下载内容与索引摘要不一致。
	KindChecksum
	// KindDecode 二进制内容无法按 schema 解码。
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindNetwork:
		return "network_failure"
	case KindChecksum:
		return "checksum_mismatch"
	case KindDecode:
		return "decode_failure"
	default:
		return "unknown"
	}
}

// 各类别的哨兵错误，配合 errors.Is 使用。
var (
	ErrNotFound     = errors.New("resource not found")
	ErrTypeMismatch = errors.New("resource type mismatch")
	ErrNetwork      = errors.New("resource network failure")
	ErrChecksum     = errors.New("resource checksum mismatch")
	ErrDecode       = errors.New("resource decode failure")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindNetwork:
		return ErrNetwork
	case KindChecksum:
		return ErrChecksum
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

// Error 是资源层统一的结构化错误。
type Error struct {
	Kind     ErrorKind
	ResID    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.ResID)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrNotFound) 之类的判断按类别生效。
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable 仅网络失败与摘要不一致可以重试。
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindChecksum
}

// KindOf 提取 err 链上第一个资源错误的类别。
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, resID string, err error) *Error {
	return &Error{Kind: kind, ResID: resID, Attempts: 1, Err: err}
}
