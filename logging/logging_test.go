package logging_test

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/logging"
)

func TestGet_ReturnsSameLoggerPerName(t *testing.T) {
	require.NoError(t, logging.Init(logging.DefaultConfig()))

	a := logging.Get("app")
	assert.Same(t, a, logging.Get("app"))
	assert.NotSame(t, a, logging.Get("closing"))
	assert.Equal(t, logrus.InfoLevel, a.GetLevel())
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Level = "chatty"
	require.NoError(t, logging.Init(cfg))

	assert.Equal(t, logrus.InfoLevel, logging.Get("app").GetLevel())
}

func TestInit_FileOutputWritesRotatedFile(t *testing.T) {
	// GIVEN: File output into a temp directory
	dir := t.TempDir()
	cfg := logging.DefaultConfig()
	cfg.Output = logging.OutputFile
	cfg.Dir = dir
	cfg.Level = "debug"
	require.NoError(t, logging.Init(cfg))
	t.Cleanup(logging.Close)

	// WHEN: Logging through a named logger
	logging.Get("closing").WithField("year", 2024).Debug("year-end close started")

	// THEN: The named file holds the entry
	data, err := os.ReadFile(logging.FilePath("closing"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "year-end close started")
	assert.Contains(t, string(data), "year=2024")
}

func TestInit_RejectsBadOutput(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Output = "syslog"
	assert.Error(t, logging.Init(cfg))

	cfg.Output = logging.OutputFile
	cfg.Dir = ""
	assert.Error(t, logging.Init(cfg))
}
