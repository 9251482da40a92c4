package kali

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEchoModule swaps ssh for echo so tests exercise the command plumbing
// without a real remote host.
func newEchoModule() *Module {
	return New(Config{
		Host:       "192.168.1.50",
		SSHCommand: "echo",
		Logger:     zerolog.Nop(),
	})
}

func TestModule_RunCommand(t *testing.T) {
	m := newEchoModule()

	result, err := m.Execute(context.Background(), "run_command",
		map[string]interface{}{"command": "uname -a"})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "uname -a")
	assert.Equal(t, "uname -a", result.Data["command"])
}

func TestModule_CheckConnection(t *testing.T) {
	m := newEchoModule()

	result, err := m.Execute(context.Background(), "check_connection", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result.Data["reachable"])
}

func TestModule_CheckConnectionFailureIsNotAnError(t *testing.T) {
	m := New(Config{
		Host:       "192.168.1.50",
		SSHCommand: "false",
		Logger:     zerolog.Nop(),
	})

	result, err := m.Execute(context.Background(), "check_connection", nil)
	require.NoError(t, err, "unreachable host is a reported state, not a dispatch failure")
	assert.Equal(t, false, result.Data["reachable"])
}

func TestModule_StartServiceRejectsShellMetacharacters(t *testing.T) {
	m := newEchoModule()

	_, err := m.Execute(context.Background(), "start_service",
		map[string]interface{}{"service": "ssh; rm -rf /"})
	assert.Error(t, err)
}

func TestModule_MissingHost(t *testing.T) {
	m := New(Config{Logger: zerolog.Nop()})

	_, err := m.Execute(context.Background(), "get_ip", nil)
	assert.ErrorContains(t, err, "not configured")
}

func TestModule_Defaults(t *testing.T) {
	m := New(Config{Host: "10.0.0.1"})
	assert.Equal(t, "kali", m.user)
	assert.Equal(t, 22, m.port)
}
