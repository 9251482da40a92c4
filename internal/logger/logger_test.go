package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.log")

		l, err := New(Config{Level: "info", File: path})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Info().Str("component", "test").Msg("hello")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
		assert.Contains(t, string(data), `"component":"test"`)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.log")

		l, err := New(Config{Level: "chatty", File: path})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Debug().Msg("dropped line")
		zl.Info().Msg("kept line")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "dropped line")
		assert.Contains(t, string(data), "kept line")
	})

	t.Run("redaction scrubs secrets", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.log")

		l, err := New(Config{Level: "info", File: path, Redaction: true})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Info().Msg("key is sk-ant-REDACTED")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "sk-ant-REDACTED")
		assert.Contains(t, string(data), "[REDACTED]")
	})

	t.Run("console only", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})
}
