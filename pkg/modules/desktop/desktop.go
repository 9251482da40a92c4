// Package desktop provides the desktop automation module: launching
// and closing applications, typing and key presses via xdotool.
package desktop

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// defaultApps maps friendly application names to executables.
var defaultApps = map[string]string{
	"chrome":   "google-chrome",
	"firefox":  "firefox",
	"cursor":   "cursor",
	"code":     "code",
	"terminal": "x-terminal-emulator",
	"files":    "nautilus",
}

// Module implements the "desktop" capability provider.
type Module struct {
	apps   map[string]string
	logger zerolog.Logger
}

// Config holds desktop module configuration.
type Config struct {
	// Apps extends or overrides the friendly-name to executable map.
	Apps   map[string]string
	Logger zerolog.Logger
}

// New creates the desktop module.
func New(cfg Config) *Module {
	apps := make(map[string]string, len(defaultApps)+len(cfg.Apps))
	for name, bin := range defaultApps {
		apps[name] = bin
	}
	for name, bin := range cfg.Apps {
		apps[name] = bin
	}
	return &Module{
		apps:   apps,
		logger: cfg.Logger.With().Str("module", "desktop").Logger(),
	}
}

// Name implements capability.Module.
func (m *Module) Name() string { return "desktop" }

// Description implements capability.Module.
func (m *Module) Description() string {
	return "Desktop control: open and close applications, type text, press keys"
}

// Capabilities implements capability.Module.
func (m *Module) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			ID:          "desktop.open_app",
			Description: "Open an application by name",
			Parameters: map[string]interface{}{
				"app":  capability.Param("string", "Application name (e.g. chrome, firefox, cursor)", true),
				"args": capability.Param("string", "Optional command line arguments", false),
			},
		},
		{
			ID:          "desktop.close_app",
			Description: "Close a running application",
			Dangerous:   true,
			Parameters: map[string]interface{}{
				"app": capability.Param("string", "Application name to close", true),
			},
		},
		{
			ID:          "desktop.run_command",
			Description: "Run a shell command on the local machine",
			Dangerous:   true,
			Parameters: map[string]interface{}{
				"command": capability.Param("string", "Command to execute", true),
			},
		},
		{
			ID:          "desktop.type_text",
			Description: "Type text into the currently focused window",
			Parameters: map[string]interface{}{
				"text": capability.Param("string", "Text to type", true),
			},
		},
		{
			ID:          "desktop.press_key",
			Description: "Press a keyboard key or combination (e.g. Return, ctrl+s, alt+Tab)",
			Parameters: map[string]interface{}{
				"keys": capability.Param("string", "Key or key combination to press", true),
			},
		},
		{
			ID:          "desktop.list_apps",
			Description: "List applications that can be opened by name",
		},
	}
}

// Execute implements capability.Module.
func (m *Module) Execute(ctx context.Context, action string, params map[string]interface{}) (capability.Result, error) {
	switch action {
	case "open_app":
		return m.openApp(ctx, params)
	case "close_app":
		return m.closeApp(ctx, params)
	case "run_command":
		return m.runCommand(ctx, params)
	case "type_text":
		return m.typeText(ctx, params)
	case "press_key":
		return m.pressKey(ctx, params)
	case "list_apps":
		return m.listApps(), nil
	default:
		return capability.Result{}, fmt.Errorf("unknown action: %s", action)
	}
}

// State implements capability.Module.
func (m *Module) State(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"known_apps": len(m.apps),
	}
}

// resolveApp maps a friendly name to an executable, falling back to the
// name itself for anything not in the table.
func (m *Module) resolveApp(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if bin, ok := m.apps[key]; ok {
		return bin
	}
	return key
}

func (m *Module) openApp(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	app, _ := params["app"].(string)
	bin := m.resolveApp(app)

	var args []string
	if extra, ok := params["args"].(string); ok && extra != "" {
		args = strings.Fields(extra)
	}

	// Detach: the application outlives the request.
	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return capability.Result{}, fmt.Errorf("failed to open %s: %w", app, err)
	}
	go func() { _ = cmd.Wait() }()

	m.logger.Info().Str("app", app).Str("bin", bin).Msg("Application launched")
	return capability.Result{
		Message: fmt.Sprintf("Opened %s", app),
		Data:    map[string]interface{}{"pid": cmd.Process.Pid},
	}, nil
}

func (m *Module) closeApp(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	app, _ := params["app"].(string)
	bin := m.resolveApp(app)

	if output, err := exec.CommandContext(ctx, "pkill", "-f", bin).CombinedOutput(); err != nil {
		return capability.Result{}, fmt.Errorf("failed to close %s: %v (%s)",
			app, err, strings.TrimSpace(string(output)))
	}
	return capability.Result{Message: fmt.Sprintf("Closed %s", app)}, nil
}

func (m *Module) runCommand(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	command, _ := params["command"].(string)

	output, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		return capability.Result{}, fmt.Errorf("command failed: %v (%s)", err, text)
	}
	return capability.Result{
		Message: "Command finished",
		Data:    map[string]interface{}{"output": text},
	}, nil
}

func (m *Module) typeText(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	text, _ := params["text"].(string)

	if output, err := exec.CommandContext(ctx, "xdotool", "type", "--delay", "30", text).CombinedOutput(); err != nil {
		return capability.Result{}, fmt.Errorf("typing failed (is xdotool installed?): %v (%s)",
			err, strings.TrimSpace(string(output)))
	}
	return capability.Result{Message: "Text typed"}, nil
}

func (m *Module) pressKey(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	keys, _ := params["keys"].(string)

	if output, err := exec.CommandContext(ctx, "xdotool", "key", keys).CombinedOutput(); err != nil {
		return capability.Result{}, fmt.Errorf("key press failed: %v (%s)",
			err, strings.TrimSpace(string(output)))
	}
	return capability.Result{Message: fmt.Sprintf("Pressed %s", keys)}, nil
}

func (m *Module) listApps() capability.Result {
	names := make([]string, 0, len(m.apps))
	for name := range m.apps {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]interface{}, len(names))
	for i, name := range names {
		items[i] = name
	}
	return capability.Result{
		Message: fmt.Sprintf("I can open: %s", strings.Join(names, ", ")),
		Data:    map[string]interface{}{"apps": items},
	}
}
