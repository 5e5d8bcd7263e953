package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default warn level", 0, zerolog.WarnLevel},
		{"info level", 1, zerolog.InfoLevel},
		{"debug level", 2, zerolog.DebugLevel},
		{"trace level", 3, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logDir := filepath.Join(t.TempDir(), "logs")

			run := SetupLogger(tt.verbosity, logDir)
			t.Cleanup(func() { _ = run.Close() })

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("SetupLogger(%d) set level to %v, want %v",
					tt.verbosity, zerolog.GlobalLevel(), tt.wantLevel)
			}

			if _, err := os.Stat(run.Path); os.IsNotExist(err) {
				t.Errorf("Log file was not created at %s", run.Path)
			}
			assert.Equal(t, logDir, filepath.Dir(run.Path))
		})
	}
}

func TestSetupLogger_MirrorsConsoleWithoutColour(t *testing.T) {
	logDir := t.TempDir()
	var stdout, stderr bytes.Buffer
	now := time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

	run := setupLogger(1, logDir, &stdout, &stderr, now)
	t.Cleanup(func() { _ = run.Close() })

	_, err := run.Console.Write([]byte("\x1b[32mwrapper-assembled\x1b[0m skipped\n"))
	require.NoError(t, err)
	log.Warn().Msg("fallback identifier used")
	require.NoError(t, run.Close())

	assert.Contains(t, stdout.String(), "\x1b[32m", "console keeps colour")

	data, err := os.ReadFile(run.Path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "wrapper-assembled skipped")
	assert.Contains(t, content, "fallback identifier used")
	assert.NotContains(t, content, "\x1b[")
	assert.Equal(t, filepath.Join(logDir, "wrapup-20261019-150405.log"), run.Path)
}

func TestRunLog_Mirror(t *testing.T) {
	var stdout, stderr, out bytes.Buffer
	run := setupLogger(0, t.TempDir(), &stdout, &stderr, time.Now())

	_, err := run.Mirror(&out).Write([]byte("\x1b[1msummary\x1b[0m\n"))
	require.NoError(t, err)
	require.NoError(t, run.Close())

	assert.Equal(t, "\x1b[1msummary\x1b[0m\n", out.String())
	data, err := os.ReadFile(run.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "summary\n")
	assert.NotContains(t, string(data), "\x1b[")

	var nilRun *RunLog
	assert.Equal(t, &out, nilRun.Mirror(&out))
}

func TestSetupLogger_UnwritableDirFallsBackToConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	var stdout, stderr bytes.Buffer
	run := setupLogger(0, filepath.Join(blocker, "logs"), &stdout, &stderr, time.Now())

	assert.Empty(t, run.Path)
	assert.NoError(t, run.Close())
	assert.Contains(t, stderr.String(), "Failed to create log file")
}

func TestLogFilePath(t *testing.T) {
	got := LogFilePath("/var/state/wrapup/logs", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "/var/state/wrapup/logs/wrapup-20260102-030405.log", filepath.ToSlash(got))
}

func TestLogCommand(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)

	LogCommand("brew", []string{"install", "--cask", "wine-stable"})

	output := buf.String()
	assert.Contains(t, output, "brew")
	assert.Contains(t, output, "wine-stable")
	assert.Contains(t, output, "Executing command")
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	done := LogOperationStart(logger, "extract")
	done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Operation started")
	assert.Contains(t, lines[1], "duration")
}

func TestStripWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewStripWriter(&buf)

	in := []byte("\x1b[1;31merror\x1b[0m: boom")
	n, err := w.Write(in)

	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	assert.Equal(t, "error: boom", buf.String())
}
