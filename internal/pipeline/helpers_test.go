package pipeline

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestEnv(t *testing.T, policy string) (*Env, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &Env{
		BundleRoot: t.TempDir(),
		Logger:     logger,
		RunID:      "test-run",
		Policy:     func(string) string { return policy },
	}, buf
}
