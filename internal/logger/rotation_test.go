package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter(t *testing.T) {
	t.Run("creates file and directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "jarvis.log")

		w, err := NewRotatingWriter(path, 10, 0, false)
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("appends across reopens", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.log")

		w, err := NewRotatingWriter(path, 10, 0, false)
		require.NoError(t, err)
		_, err = w.Write([]byte("first\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		w, err = NewRotatingWriter(path, 10, 0, false)
		require.NoError(t, err)
		_, err = w.Write([]byte("second\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "first")
		assert.Contains(t, string(data), "second")
	})

	t.Run("rotates when size limit exceeded", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "jarvis.log")

		// 1 MB limit; two writes of ~700 KB force one rotation.
		w, err := NewRotatingWriter(path, 1, 0, false)
		require.NoError(t, err)
		defer w.Close()

		chunk := bytes.Repeat([]byte("x"), 700*1024)
		_, err = w.Write(chunk)
		require.NoError(t, err)
		_, err = w.Write(chunk)
		require.NoError(t, err)

		rotated, err := filepath.Glob(path + ".*")
		require.NoError(t, err)
		assert.Len(t, rotated, 1)
	})
}
