package resource

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/cache"
)

const testCacheRoot = "/cache"

// upstreamStub 记录每个路径的请求次数，并按 bodies 返回内容。
type upstreamStub struct {
	server *httptest.Server

	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string][]int
	hits     map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	release     chan struct{}
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{
		bodies:   make(map[string]string),
		statuses: make(map[string][]int),
		hits:     make(map[string]int),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) serve(w http.ResponseWriter, r *http.Request) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if s.release != nil {
		<-s.release
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	path := strings.TrimPrefix(r.URL.Path, "/resources/")
	s.mu.Lock()
	s.hits[path]++
	body, ok := s.bodies[path]
	var status int
	if queue := s.statuses[path]; len(queue) > 0 {
		status = queue[0]
		s.statuses[path] = queue[1:]
	}
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = io.WriteString(w, body)
}

func (s *upstreamStub) set(locator, body string) {
	s.mu.Lock()
	s.bodies[locator] = body
	s.mu.Unlock()
}

// failFirst 让 locator 的前几次请求依次返回给定状态码。
func (s *upstreamStub) failFirst(locator string, statuses ...int) {
	s.mu.Lock()
	s.statuses[locator] = append(s.statuses[locator], statuses...)
	s.mu.Unlock()
}

func (s *upstreamStub) hitCount(locator string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[locator]
}

func (s *upstreamStub) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *upstreamStub) formatter() URLFormatter {
	return TemplateFormatter(s.server.URL+"/{type}/{url}", "resources")
}

func md5Hex(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestFetcher 返回基于内存文件系统的 Fetcher，退避等待被记录而非真正休眠。
func newTestFetcher(t *testing.T, opts ...FetcherOption) (*Fetcher, cache.Store, *[]time.Duration) {
	t.Helper()
	store, err := cache.NewStore(afero.NewMemMapFs(), testCacheRoot)
	require.NoError(t, err)

	opts = append([]FetcherOption{WithLogger(quietLogger())}, opts...)
	f := NewFetcher(&http.Client{Timeout: 5 * time.Second}, store, opts...)

	var mu sync.Mutex
	delays := &[]time.Duration{}
	f.newTimer = func() backoff.Timer {
		return &recordingTimer{onStart: func(d time.Duration) {
			mu.Lock()
			*delays = append(*delays, d)
			mu.Unlock()
		}}
	}
	return f, store, delays
}

// recordingTimer 记录每次退避时长并立即触发；hold 为 true 时永不触发。
type recordingTimer struct {
	onStart func(time.Duration)
	hold    bool
	c       chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	if t.onStart != nil {
		t.onStart(d)
	}
	t.c = make(chan time.Time, 1)
	if !t.hold {
		t.c <- time.Time{}
	}
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.c }

func leafFor(t *testing.T, tree *Tree, id string) *Leaf {
	t.Helper()
	n, ok := tree.Resolve(id)
	require.True(t, ok, "resolve %s", id)
	leaf, ok := n.Leaf()
	require.True(t, ok, "%s should be a leaf", id)
	return leaf
}

func writeCached(store cache.Store, path, body string) error {
	_, err := store.Put(context.Background(), path, strings.NewReader(body), cache.PutOptions{})
	return err
}
