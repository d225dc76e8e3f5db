package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggerConfig
		check  func(t *testing.T, output string)
	}{
		{
			name:   "JSON output with info level",
			config: LoggerConfig{Level: "info"},
			check: func(t *testing.T, output string) {
				var logEntry map[string]interface{}
				err := json.Unmarshal([]byte(output), &logEntry)
				require.NoError(t, err)
				assert.Equal(t, "info", logEntry["level"])
				assert.Equal(t, "test message", logEntry["message"])
				assert.Contains(t, logEntry, "time")
			},
		},
		{
			name:   "With caller info",
			config: LoggerConfig{Level: "info", CallerInfo: true},
			check: func(t *testing.T, output string) {
				var logEntry map[string]interface{}
				err := json.Unmarshal([]byte(output), &logEntry)
				require.NoError(t, err)
				assert.Contains(t, logEntry, "caller")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}

			logger := NewLogger(tt.config).Output(buf)
			logger.Info().Msg("test message")

			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestNewLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "schema-guard.log")

	logger := NewLogger(LoggerConfig{Level: "info", LogFile: path})
	logger.Info().Msg("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestInvalidLogLevel(t *testing.T) {
	buf := &bytes.Buffer{}

	logger := NewLogger(LoggerConfig{Level: "invalid"}).Output(buf)

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.Contains(t, output, "info message")
}

func TestWithRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	scoped, runID := WithRunID(logger)
	scoped.Info().Msg("run started")

	_, err := uuid.Parse(runID)
	require.NoError(t, err)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, runID, logEntry["run_id"])

	_, other := WithRunID(logger)
	assert.NotEqual(t, runID, other)
}

func TestWithMigration(t *testing.T) {
	buf := &bytes.Buffer{}

	logger := WithMigration(zerolog.New(buf), "001_init", "up")
	logger.Info().Msg("applying")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "001_init", logEntry["migration"])
	assert.Equal(t, "up", logEntry["direction"])
}

func TestLoggerConfigs(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()
		assert.Equal(t, "info", config.Level)
		assert.False(t, config.Pretty)
		assert.False(t, config.CallerInfo)
	})

	t.Run("DevelopmentConfig", func(t *testing.T) {
		config := DevelopmentConfig()
		assert.Equal(t, "debug", config.Level)
		assert.True(t, config.Pretty)
		assert.True(t, config.CallerInfo)
	})

	t.Run("ConfigFor", func(t *testing.T) {
		config := ConfigFor("warn", false, "")
		assert.Equal(t, DefaultConfig().Pretty, config.Pretty)
		assert.Equal(t, "warn", config.Level)

		config = ConfigFor("", true, "/tmp/guard.log")
		assert.Equal(t, "debug", config.Level)
		assert.True(t, config.Pretty)
		assert.True(t, config.CallerInfo)
		assert.Equal(t, "/tmp/guard.log", config.LogFile)
	})
}
