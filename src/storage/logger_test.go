package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)

	logger.Info("数据集加载完毕")
	logger.Warning("Austria/GDP 无可用均值")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "] INFO: 数据集加载完毕")
	assert.Contains(t, lines[1], "] WARNING: Austria/GDP 无可用均值")
}

func TestLoggerSubscribe(t *testing.T) {
	logger, err := NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	ch := logger.Subscribe()
	logger.Error("boom")

	select {
	case msg := <-ch:
		assert.Contains(t, msg, "ERROR: boom")
	default:
		t.Fatal("subscriber did not receive the entry")
	}
}

func TestLoggerRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.Debug("This is a log message")
	}
	require.NoError(t, logger.CheckRotate("1 * 64"))

	matches, err := filepath.Glob(filepath.Join(dir, "app.*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// 小于阈值时不轮转
	logger.Debug("short")
	require.NoError(t, logger.CheckRotate("10 * 1024 * 1024"))
	matches, _ = filepath.Glob(filepath.Join(dir, "app.*.log"))
	assert.Len(t, matches, 1)
}

func TestLoggerReopen(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(filepath.Join(dir, "a.log"))
	require.NoError(t, err)
	defer logger.Close()

	next := filepath.Join(dir, "b.log")
	require.NoError(t, logger.Reopen(next))
	logger.Info("after reopen")

	data, err := os.ReadFile(next)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after reopen")
}

func TestEval(t *testing.T) {
	assert.Equal(t, int64(10*1024*1024), eval("10 * 1024 * 1024"))
	assert.Equal(t, int64(512), eval("512"))
	assert.Equal(t, int64(0), eval("ten"))
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "WARNING", WARNING.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestLoggerScheduleRotate(t *testing.T) {
	logger, err := NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	_, err = logger.ScheduleRotate("every minute", "1024")
	assert.Error(t, err)

	c, err := logger.ScheduleRotate("@every 1m", "1024")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}
