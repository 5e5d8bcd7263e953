package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFilePrefix is the name prefix of per-run log files
const LogFilePrefix = "wrapup"

// RunLog is the persistent log of a single run. Console output written
// through Console is duplicated into the file with colour codes removed.
type RunLog struct {
	Path    string
	Console io.Writer

	file  *os.File
	plain io.Writer
	once  sync.Once
}

// Mirror returns a writer that duplicates w into the log file. Without a
// log file it returns w.
func (r *RunLog) Mirror(w io.Writer) io.Writer {
	if r == nil || r.plain == nil {
		return w
	}
	return io.MultiWriter(w, r.plain)
}

// Close flushes and closes the log file
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	var err error
	r.once.Do(func() {
		err = r.file.Close()
	})
	return err
}

// SetupLogger configures the global logger based on verbosity level.
// It sets up dual output to the console and a timestamped log file under
// logDir. If the file cannot be created the run continues console-only.
func SetupLogger(verbosity int, logDir string) *RunLog {
	return setupLogger(verbosity, logDir, os.Stdout, os.Stderr, time.Now())
}

func setupLogger(verbosity int, logDir string, stdout, stderr io.Writer, now time.Time) *RunLog {
	// Configure zerolog based on verbosity
	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	run := &RunLog{Console: stdout}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        stderr,
		TimeFormat: time.Kitchen,
		NoColor:    false,
	}
	writers := []io.Writer{consoleWriter}

	logFile := LogFilePath(logDir, now)
	logFileHandle, err := setupLogFile(logFile)
	if err == nil {
		run.Path = logFile
		run.file = logFileHandle
		plain := NewStripWriter(logFileHandle)
		run.plain = plain
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        plain,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
		run.Console = io.MultiWriter(stdout, plain)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()

	if err != nil {
		log.Warn().Err(err).Str("path", logFile).Msg("Failed to create log file, logging to console only")
	}

	// Add caller information for debug and trace levels
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}

	log.Debug().Int("verbosity", verbosity).Str("logFile", run.Path).Msg("Logger initialized")
	return run
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// WithFields returns a logger with additional fields
func WithFields(fields map[string]interface{}) zerolog.Logger {
	logger := log.Logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return logger
}

// LogFilePath returns the per-run log file path for a run started at now
func LogFilePath(logDir string, now time.Time) string {
	name := fmt.Sprintf("%s-%s.log", LogFilePrefix, now.Format("20060102-150405"))
	return filepath.Join(logDir, name)
}

// setupLogFile creates the log file and its parent directories
func setupLogFile(logPath string) (*os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Append mode: two runs in the same second share one file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// LogCommand logs a command execution with its arguments
func LogCommand(cmd string, args []string) {
	log.Debug().
		Str("command", cmd).
		Strs("args", args).
		Msg("Executing command")
}

// LogDuration logs the duration of an operation
func LogDuration(start time.Time, operation string) {
	log.Debug().
		Str("operation", operation).
		Dur("duration", time.Since(start)).
		Msg("Operation completed")
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}
