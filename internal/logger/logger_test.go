package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func()) (stdout string, stderr string) {
	origOut, origErr := os.Stdout, os.Stderr
	defer func() { os.Stdout, os.Stderr = origOut, origErr }()

	rOut, wOut, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")
	rErr, wErr, err := os.Pipe()
	require.NoError(t, err, "failed to create stderr pipe")

	os.Stdout, os.Stderr = wOut, wErr

	fn()

	err = wOut.Close()
	require.NoError(t, err, "failed to close stdout pipe")
	err = wErr.Close()
	require.NoError(t, err, "failed to close stderr pipe")

	outBytes, err := io.ReadAll(rOut)
	require.NoError(t, err, "failed to read stdout pipe")
	errBytes, err := io.ReadAll(rErr)
	require.NoError(t, err, "failed to read stderr pipe")

	return string(outBytes), string(errBytes)
}

func TestLogger_parseLevel(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		for input, want := range map[string]slog.Level{
			"debug": slog.LevelDebug,
			"INFO":  slog.LevelInfo,
			"Warn":  slog.LevelWarn,
			"error": slog.LevelError,
		} {
			got, err := parseLevel(input)

			require.NoError(t, err, "level %q", input)
			require.Equal(t, want, got, "level %q", input)
		}
	})

	t.Run("not valid", func(t *testing.T) {
		for _, input := range []string{"", "uknown", "trace"} {
			_, err := parseLevel(input)

			require.Error(t, err, "level %q", input)
		}
	})
}

func TestLogger_Levels(t *testing.T) {
	levels := []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
	calls := []func(Logger){
		func(l Logger) { l.Debug("test") },
		func(l Logger) { l.Info("test") },
		func(l Logger) { l.Warn("test") },
		func(l Logger) { l.Error("test") },
	}

	// Message is written when its level is not below the configured one
	for configured, level := range levels {
		for msgLevel, call := range calls {
			stdout, stderr := capture(t, func() {
				logger, err := NewTextLogger(level)
				require.NoError(t, err)

				call(logger)
			})

			require.Empty(t, stdout, "logger never writes to stdout")
			require.Equal(t, msgLevel >= configured, stderr != "", "configured %s, message level %s", level, levels[msgLevel])
		}
	}
}

func TestLogger_NoOp(t *testing.T) {
	stdout, stderr := capture(t, func() {
		logger := NewNoOpLogger()
		logger.Debug("debug message")
		logger.Error("error message")
		logger.With("key", "value").Info("info message")
	})

	require.Empty(t, stdout)
	require.Empty(t, stderr)
}

func TestLogger_Output(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := NewJSONLogger(LevelInfo)
			require.NoError(t, err)

			logger.With("component", "auth").Info("test message", "key", "value")
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(stderr), &entry), "JSON log should be valid")
		require.Equal(t, "test message", entry["msg"])
		require.Equal(t, "INFO", entry["level"])
		require.Equal(t, "value", entry["key"])
		require.Equal(t, "auth", entry["component"])

		source, ok := entry["source"].(map[string]any)
		require.True(t, ok, "source is added")
		require.Equal(t, "logger_test.go", source["file"], "source is the caller file base name")
	})

	t.Run("group", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := NewTextLogger(LevelInfo)
			require.NoError(t, err)

			logger.WithGroup("request").Info("test message", "method", "GET")
		})

		require.Contains(t, stderr, "request.method=GET")
	})

	t.Run("sensitive values redacted", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := NewJSONLogger(LevelInfo)
			require.NoError(t, err)

			logger.Info("login", "email", "nk@example.com", "password", "hunter2", "Authorization", "Bearer abc")
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(stderr), &entry))
		require.Equal(t, "nk@example.com", entry["email"])
		require.Equal(t, "[REDACTED]", entry["password"])
		require.Equal(t, "[REDACTED]", entry["Authorization"])
		require.NotContains(t, stderr, "hunter2")
	})
}

func TestLogger_New(t *testing.T) {
	t.Run("production writes json", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			logger.Info("json message")
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(stderr), &entry), "production logger should write json")
		require.Equal(t, "json message", entry["msg"])
	})

	t.Run("development writes text", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			logger.Info("text message")
		})

		require.Contains(t, stderr, `msg="text message"`)
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		require.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(EnvProduction, "verbose")

		require.Error(t, err)
	})
}
