package server

import (
	"net"
	"net/http"
	"time"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回访问资源服务器的共享 http.Client。
// UpstreamTimeout 只限制等待响应头的时间，响应体的传输时长由调用方的 ctx 控制。
// 连接数上限与下载并发保持一致。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	transport := defaultTransport.Clone()
	if cfg != nil {
		if d := cfg.Global.UpstreamTimeout.DurationValue(); d > 0 {
			timeout = d
		}
		if n := cfg.Global.MaxConcurrency; n > 0 {
			transport.MaxConnsPerHost = n
		}
	}

	transport.ResponseHeaderTimeout = timeout

	return &http.Client{Transport: transport}
}
