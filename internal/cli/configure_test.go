package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ilja/jarvis/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Run("writes starter config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.json")
		cfgFile = path
		defer func() { cfgFile = "" }()

		require.NoError(t, runConfigure(configureCmd, nil))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Len(t, cfg.AI.Profiles, 1)
		assert.Equal(t, "anthropic", cfg.AI.Profiles[0].Provider)
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jarvis.json")
		cfgFile = path
		defer func() { cfgFile = "" }()

		require.NoError(t, runConfigure(configureCmd, nil))
		assert.Error(t, runConfigure(configureCmd, nil))

		configureForce = true
		defer func() { configureForce = false }()
		assert.NoError(t, runConfigure(configureCmd, nil))
	})
}
