package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
			MaxConcurrency:  6,
		},
	}

	client := NewUpstreamClient(cfg)
	assert.Zero(t, client.Timeout, "whole-transfer timeout must stay unset")
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok, "expected *http.Transport, got %T", client.Transport)
	assert.Equal(t, 45*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 6, transport.MaxConnsPerHost)
}

func TestNewUpstreamClientDefaults(t *testing.T) {
	client := NewUpstreamClient(nil)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, transport.ResponseHeaderTimeout)
	assert.Zero(t, client.Timeout)
}

func upstreamClient(timeout time.Duration) *http.Client {
	return NewUpstreamClient(&config.Config{Global: config.GlobalConfig{UpstreamTimeout: config.Duration(timeout)}})
}

func TestUpstreamClientAllowsSlowBodyAfterHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for _, chunk := range []string{"slow ", "pickle ", "body"} {
			time.Sleep(60 * time.Millisecond)
			_, _ = io.WriteString(w, chunk)
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	resp, err := upstreamClient(100 * time.Millisecond).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "slow pickle body", string(body))
}

func TestUpstreamClientTimesOutWaitingForHeaders(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := upstreamClient(50 * time.Millisecond).Get(srv.URL)
	assert.Error(t, err)
}

func TestUpstreamClientBodyFollowsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := upstreamClient(time.Minute).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err, "reading the body must stop once ctx expires")
}
