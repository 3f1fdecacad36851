package resource

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/cache"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/version"
)

// DefaultConcurrency 是并发闸门的默认槽位数。
const DefaultConcurrency = 4

// URLFormatter 将远端定位串展开为完整下载地址。
type URLFormatter func(remoteLocator string) string

// TemplateFormatter 基于资源服务模板构造 URLFormatter，模板中的 {type} 与 {url}
// 分别替换为资源类别（resources / binaries）与定位串。
func TemplateFormatter(template, class string) URLFormatter {
	return func(remoteLocator string) string {
		return strings.NewReplacer("{type}", class, "{url}", remoteLocator).Replace(template)
	}
}

// NewGate 创建容量为 n 的并发闸门，n<=0 时使用默认值。
func NewGate(n int64) *semaphore.Weighted {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return semaphore.NewWeighted(n)
}

// RetryPolicy 控制单个叶子的最大尝试次数与指数退避。
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy 三次尝试，退避 1s、2s。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// backOff 构造单次 Fetch 的退避序列：InitialBackoff 起按 2 倍增长，不超过 MaxBackoff，
// 共允许 MaxAttempts-1 次重试。ctx 结束后不再等待。
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	maxInterval := p.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(max(p.InitialBackoff, 0)),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(p.MaxAttempts-1, 0))), ctx)
}

// State 是单个叶子下载过程中的状态。
type State int

const (
	StateNotRequested State = iota
	StateRequesting
	StateWriting
	StateVerifying
	StateRetrying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotRequested:
		return "not_requested"
	case StateRequesting:
		return "requesting"
	case StateWriting:
		return "writing"
	case StateVerifying:
		return "verifying"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher 负责把单个叶子下载到缓存中。同一个 Fetcher 内的所有下载共享一个闸门。
type Fetcher struct {
	client      *http.Client
	store       cache.Store
	gate        *semaphore.Weighted
	policy      RetryPolicy
	newHash     func() hash.Hash
	verifyOnHit bool
	logger      *logrus.Logger
	onState     func(resID string, s State)
	newTimer    func() backoff.Timer
}

// FetcherOption 定制 Fetcher。
type FetcherOption func(*Fetcher)

// WithGate 注入共享闸门。
func WithGate(gate *semaphore.Weighted) FetcherOption {
	return func(f *Fetcher) { f.gate = gate }
}

// WithRetryPolicy 覆盖默认重试策略。
func WithRetryPolicy(p RetryPolicy) FetcherOption {
	return func(f *Fetcher) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		f.policy = p
	}
}

// WithHash 替换摘要算法，默认 MD5。
func WithHash(newHash func() hash.Hash) FetcherOption {
	return func(f *Fetcher) { f.newHash = newHash }
}

// WithVerifyOnHit 让已存在的缓存文件在命中时重新校验摘要。
func WithVerifyOnHit(enabled bool) FetcherOption {
	return func(f *Fetcher) { f.verifyOnHit = enabled }
}

// WithLogger 指定日志实例。
func WithLogger(logger *logrus.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// WithStateHook 在每次状态迁移时回调。
func WithStateHook(hook func(resID string, s State)) FetcherOption {
	return func(f *Fetcher) { f.onState = hook }
}

// NewFetcher 构造 Fetcher；client 为空时使用 http.DefaultClient。
func NewFetcher(client *http.Client, store cache.Store, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:  client,
		store:   store,
		policy:  DefaultRetryPolicy(),
		newHash: md5.New,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.gate == nil {
		f.gate = NewGate(DefaultConcurrency)
	}
	return f
}

// Store 返回底层缓存存储。
func (f *Fetcher) Store() cache.Store {
	return f.store
}

// Fetch 确保 leaf 已落盘。已存在的文件直接返回，不访问网络。
func (f *Fetcher) Fetch(ctx context.Context, leaf *Leaf, format URLFormatter) (*Leaf, error) {
	hit, err := f.cached(ctx, leaf)
	if err != nil {
		return nil, err
	}
	if hit {
		f.transition(leaf, StateDone)
		return leaf, nil
	}

	url := format(leaf.RemoteLocator)
	attempts := 0
	operation := func() error {
		attempts++
		err := f.attempt(ctx, leaf, url)
		var re *Error
		if errors.As(err, &re) {
			re.Attempts = attempts
			if re.Retryable() {
				return err
			}
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, delay time.Duration) {
		f.transition(leaf, StateRetrying)
		f.logger.WithFields(logrus.Fields{
			"action":  "fetch",
			"res_id":  leaf.ResID,
			"attempt": attempts,
			"backoff": delay.String(),
			"kind":    KindOf(err).String(),
		}).WithError(err).Warn("fetch_retry")
	}

	var timer backoff.Timer
	if f.newTimer != nil {
		timer = f.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(operation, f.policy.backOff(ctx), notify, timer); err != nil {
		f.transition(leaf, StateFailed)
		f.logger.WithFields(logrus.Fields{
			"action":   "fetch",
			"res_id":   leaf.ResID,
			"url":      url,
			"attempts": attempts,
		}).WithError(err).Error("fetch_failed")
		return nil, err
	}

	f.transition(leaf, StateDone)
	f.logger.WithFields(logrus.Fields{
		"action":  "fetch",
		"res_id":  leaf.ResID,
		"path":    leaf.LocalPath,
		"attempt": attempts,
	}).Debug("resource_downloaded")
	return leaf, nil
}

// attempt 完成一次请求-写入-校验，闸门槽位在返回前释放。
func (f *Fetcher) attempt(ctx context.Context, leaf *Leaf, url string) error {
	if err := f.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.gate.Release(1)

	f.transition(leaf, StateRequesting)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindNetwork, ResID: leaf.ResID, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return newError(KindNetwork, leaf.ResID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return newError(KindNetwork, leaf.ResID, &StatusError{StatusCode: resp.StatusCode, URL: url})
	}

	f.transition(leaf, StateWriting)
	_, err = f.store.Put(ctx, leaf.LocalPath, resp.Body, cache.PutOptions{
		Checksum: leaf.Checksum,
		NewHash:  f.newHash,
	})
	var mismatch *cache.ChecksumError
	switch {
	case errors.As(err, &mismatch):
		f.transition(leaf, StateVerifying)
		return newError(KindChecksum, leaf.ResID, err)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return newError(KindNetwork, leaf.ResID, err)
	}
	if leaf.Checksum != "" {
		f.transition(leaf, StateVerifying)
	}
	return nil
}

// cached 判断文件是否已存在；开启 verifyOnHit 时摘要不符的文件会被删除。
func (f *Fetcher) cached(ctx context.Context, leaf *Leaf) (bool, error) {
	ok, err := f.store.Exists(ctx, leaf.LocalPath)
	if err != nil || !ok {
		return false, err
	}
	if !f.verifyOnHit || leaf.Checksum == "" {
		return true, nil
	}

	result, err := f.store.Open(ctx, leaf.LocalPath)
	if err != nil {
		return false, err
	}
	h := f.newHash()
	_, err = io.Copy(h, result.Reader)
	result.Reader.Close()
	if err != nil {
		return false, err
	}
	if strings.EqualFold(hex.EncodeToString(h.Sum(nil)), leaf.Checksum) {
		return true, nil
	}

	f.logger.WithFields(logrus.Fields{
		"action": "fetch",
		"res_id": leaf.ResID,
		"path":   leaf.LocalPath,
	}).Warn("cached_checksum_mismatch")
	if err := f.store.Remove(ctx, leaf.LocalPath); err != nil {
		return false, err
	}
	return false, nil
}

func (f *Fetcher) transition(leaf *Leaf, s State) {
	if f.onState != nil {
		f.onState(leaf.ResID, s)
	}
}
