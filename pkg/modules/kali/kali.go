// Package kali provides the remote Kali machine module. Commands run
// over SSH against a configured host.
package kali

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Module implements the "kali" capability provider.
type Module struct {
	host       string
	user       string
	port       int
	sshCommand string
	logger     zerolog.Logger
}

// Config holds kali module configuration.
type Config struct {
	// Host is the SSH target, e.g. "192.168.1.50".
	Host string
	// User is the SSH login, defaults to "kali".
	User string
	// Port is the SSH port, defaults to 22.
	Port int
	// SSHCommand overrides the ssh binary, mainly for tests.
	SSHCommand string
	Logger     zerolog.Logger
}

// New creates the kali module.
func New(cfg Config) *Module {
	user := cfg.User
	if user == "" {
		user = "kali"
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	sshCommand := cfg.SSHCommand
	if sshCommand == "" {
		sshCommand = "ssh"
	}
	return &Module{
		host:       cfg.Host,
		user:       user,
		port:       port,
		sshCommand: sshCommand,
		logger:     cfg.Logger.With().Str("module", "kali").Logger(),
	}
}

// Name implements capability.Module.
func (m *Module) Name() string { return "kali" }

// Description implements capability.Module.
func (m *Module) Description() string {
	return "Remote Kali machine control over SSH: commands, services, connectivity"
}

// Capabilities implements capability.Module.
func (m *Module) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			ID:          "kali.run_command",
			Description: "Run a shell command on the Kali machine",
			Dangerous:   true,
			Parameters: map[string]interface{}{
				"command": capability.Param("string", "Command to execute on the remote machine", true),
			},
		},
		{
			ID:          "kali.check_connection",
			Description: "Check whether the Kali machine is reachable over SSH",
		},
		{
			ID:          "kali.get_ip",
			Description: "Get the Kali machine's IP addresses",
		},
		{
			ID:          "kali.start_service",
			Description: "Start a service on the Kali machine",
			Dangerous:   true,
			Parameters: map[string]interface{}{
				"service": capability.Param("string", "Service name, e.g. ssh, apache2, postgresql", true),
			},
		},
	}
}

// Execute implements capability.Module.
func (m *Module) Execute(ctx context.Context, action string, params map[string]interface{}) (capability.Result, error) {
	if m.host == "" {
		return capability.Result{}, fmt.Errorf("kali host is not configured")
	}
	switch action {
	case "run_command":
		command, _ := params["command"].(string)
		return m.run(ctx, command)
	case "check_connection":
		return m.checkConnection(ctx)
	case "get_ip":
		return m.run(ctx, "hostname -I")
	case "start_service":
		service, _ := params["service"].(string)
		return m.startService(ctx, service)
	default:
		return capability.Result{}, fmt.Errorf("unknown action: %s", action)
	}
}

// State implements capability.Module.
func (m *Module) State(ctx context.Context) map[string]interface{} {
	state := map[string]interface{}{
		"host": m.host,
		"user": m.user,
		"port": m.port,
	}
	if m.host != "" {
		shortCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_, err := m.ssh(shortCtx, "true")
		state["reachable"] = err == nil
	}
	return state
}

// ssh runs a command on the remote host and returns combined output.
func (m *Module) ssh(ctx context.Context, command string) (string, error) {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=5",
		"-o", "StrictHostKeyChecking=accept-new",
		"-p", strconv.Itoa(m.port),
		fmt.Sprintf("%s@%s", m.user, m.host),
		command,
	}
	output, err := exec.CommandContext(ctx, m.sshCommand, args...).CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		return text, fmt.Errorf("ssh to %s failed: %v (%s)", m.host, err, text)
	}
	return text, nil
}

func (m *Module) run(ctx context.Context, command string) (capability.Result, error) {
	output, err := m.ssh(ctx, command)
	if err != nil {
		return capability.Result{}, err
	}

	message := output
	if message == "" {
		message = "Command finished with no output"
	}
	return capability.Result{
		Message: message,
		Data:    map[string]interface{}{"output": output, "command": command},
	}, nil
}

func (m *Module) checkConnection(ctx context.Context) (capability.Result, error) {
	start := time.Now()
	if _, err := m.ssh(ctx, "true"); err != nil {
		return capability.Result{
			Message: fmt.Sprintf("Kali machine at %s is not reachable", m.host),
			Data:    map[string]interface{}{"reachable": false, "error": err.Error()},
		}, nil
	}
	latency := time.Since(start).Round(time.Millisecond)
	return capability.Result{
		Message: fmt.Sprintf("Kali machine at %s is reachable (%s)", m.host, latency),
		Data:    map[string]interface{}{"reachable": true, "latency": latency.String()},
	}, nil
}

func (m *Module) startService(ctx context.Context, service string) (capability.Result, error) {
	if strings.ContainsAny(service, " ;|&$`") {
		return capability.Result{}, fmt.Errorf("invalid service name: %q", service)
	}
	if _, err := m.ssh(ctx, fmt.Sprintf("sudo systemctl start %s", service)); err != nil {
		return capability.Result{}, err
	}
	status, _ := m.ssh(ctx, fmt.Sprintf("systemctl is-active %s", service))
	return capability.Result{
		Message: fmt.Sprintf("Service %s: %s", service, status),
		Data:    map[string]interface{}{"service": service, "status": status},
	}, nil
}
