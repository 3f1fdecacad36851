package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// capturedOutput 保存测试期间 CLI 写出的 stdout/stderr。
type capturedOutput struct {
	out bytes.Buffer
	err bytes.Buffer
}

var captured *capturedOutput

// useBufferWriters 在测试期间把 stdOut/stdErr 替换为内存缓冲，结束后恢复。
func useBufferWriters(t *testing.T) *capturedOutput {
	t.Helper()

	c := &capturedOutput{}
	prevOut, prevErr, prevCaptured := stdOut, stdErr, captured
	stdOut, stdErr, captured = &c.out, &c.err, c
	t.Cleanup(func() {
		stdOut, stdErr, captured = prevOut, prevErr, prevCaptured
	})
	return c
}

func stdErrBuffer() *bytes.Buffer {
	if captured == nil {
		return &bytes.Buffer{}
	}
	return &captured.err
}

// configFixture 返回 internal/config/testdata 下的配置样例；go test 以包目录为工作目录。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("internal", "config", "testdata", name)
}
