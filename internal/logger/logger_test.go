package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_CreatesDirAndParsesLevel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	require.NoError(t, InitLogger("debug", dir))
	t.Cleanup(func() { Logger = nil })

	_, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestInitLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, InitLogger("loud", t.TempDir()))
	t.Cleanup(func() { Logger = nil })

	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}

func TestFileHook_RoutesByLevel(t *testing.T) {
	var errBuf, infoBuf, debugBuf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	l.SetLevel(logrus.DebugLevel)
	l.AddHook(&FileHook{ErrorWriter: &errBuf, InfoWriter: &infoBuf, DebugWriter: &debugBuf})

	l.Error("boom")
	l.Warn("careful")
	l.Info("hello")
	l.Debug("details")

	assert.Contains(t, errBuf.String(), "boom")
	assert.NotContains(t, errBuf.String(), "hello")
	assert.Contains(t, infoBuf.String(), "careful")
	assert.Contains(t, infoBuf.String(), "hello")
	assert.Contains(t, debugBuf.String(), "details")
	assert.NotContains(t, debugBuf.String(), "boom")
}

func TestHelpers_NilLoggerIsSafe(t *testing.T) {
	Logger = nil
	assert.NotPanics(t, func() {
		Info("x", map[string]interface{}{"k": 1})
		Error("x", nil)
		Warn("x", nil)
		Debug("x", nil)
		InfoMsg("x")
		WarnMsg("x")
	})
}
