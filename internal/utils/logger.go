package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	// Level sets the minimum log level (debug, info, warn, error, fatal, panic)
	Level string
	// Pretty enables pretty console output for operators at a terminal
	Pretty bool
	// CallerInfo adds file and line number to logs
	CallerInfo bool
	// LogFile specifies the log file path (empty means stderr)
	LogFile string
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	output := openOutput(config.LogFile)

	// Pretty output only makes sense on a terminal
	if config.Pretty && config.LogFile == "" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	if config.CallerInfo {
		logger = logger.With().Caller().Logger()
	}

	return logger
}

// openOutput returns the log file, falling back to stderr when it cannot be opened
func openOutput(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return os.Stderr
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return os.Stderr
	}
	return file
}

// SetupGlobalLogger sets up the global logger with the given configuration
func SetupGlobalLogger(config LoggerConfig) {
	log.Logger = NewLogger(config)
}

// WithRunID tags every line of a migrate or rollback run with a fresh run id
func WithRunID(logger zerolog.Logger) (zerolog.Logger, string) {
	runID := uuid.NewString()
	return logger.With().Str("run_id", runID).Logger(), runID
}

// WithMigration scopes a logger to a single migration step
func WithMigration(logger zerolog.Logger, name, direction string) zerolog.Logger {
	return logger.With().
		Str("migration", name).
		Str("direction", direction).
		Logger()
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		Pretty:     false,
		CallerInfo: false,
	}
}

// DevelopmentConfig returns a logger configuration suitable for development
func DevelopmentConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "debug",
		Pretty:     true,
		CallerInfo: true,
	}
}

// ConfigFor picks the development or default preset and applies the
// configured level and log file on top of it
func ConfigFor(level string, debug bool, logFile string) LoggerConfig {
	config := DefaultConfig()
	if debug {
		config = DevelopmentConfig()
	}
	if level != "" {
		config.Level = level
	}
	config.LogFile = logFile
	return config
}
