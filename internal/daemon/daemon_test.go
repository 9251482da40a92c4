package daemon

import (
	"path/filepath"
	"testing"

	"github.com/ilja/jarvis/internal/config"
	"github.com/ilja/jarvis/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig uses the ollama provider and disables the transports that
// would reach the network at construction time.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Audit.Path = filepath.Join(dir, "jarvis.db")
	cfg.PolicyPath = filepath.Join(dir, "policy.json")
	cfg.Telegram.Enabled = false
	cfg.Gateway.Enabled = false
	cfg.Modules.Browser.Enabled = false
	cfg.AI.Profiles = []config.AIProfile{
		{ID: "local", Provider: "ollama", BaseURL: "http://127.0.0.1:11434"},
	}
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestNew_WiresModulesFromConfig(t *testing.T) {
	d, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 2, status.Modules, "system and desktop enabled by default")
	assert.Empty(t, status.Owner)
}

func TestNew_KaliModuleRequiresHost(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules.Kali.Enabled = true
	cfg.Modules.Kali.Host = "192.168.56.10"

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Status().Modules)
}

func TestNew_NoProfilesFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Profiles = nil

	_, err := New(cfg, testLogger(t))
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	d, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.Error(t, d.Start(), "double start rejected")

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.NoError(t, d.Stop(), "stop is idempotent")
}
