// Package system provides the system utility module: status, desktop
// screenshots, notes and window enumeration.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Module implements the "system" capability provider.
type Module struct {
	notes          *audit.Store
	captureCommand []string
	screenshotDir  string
	startedAt      time.Time
	logger         zerolog.Logger
}

// Config holds system module configuration.
type Config struct {
	// Notes is the store backing system.add_note / system.get_notes.
	Notes *audit.Store
	// CaptureCommand takes the screenshot; the output path is appended
	// as the last argument. Defaults to scrot.
	CaptureCommand []string
	// ScreenshotDir is where screenshots are written.
	ScreenshotDir string
	Logger        zerolog.Logger
}

// New creates the system module.
func New(cfg Config) *Module {
	capture := cfg.CaptureCommand
	if len(capture) == 0 {
		capture = []string{"scrot", "--overwrite"}
	}
	dir := cfg.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Module{
		notes:          cfg.Notes,
		captureCommand: capture,
		screenshotDir:  dir,
		startedAt:      time.Now(),
		logger:         cfg.Logger.With().Str("module", "system").Logger(),
	}
}

// Name implements capability.Module.
func (m *Module) Name() string { return "system" }

// Description implements capability.Module.
func (m *Module) Description() string {
	return "System utilities: screenshots, status, notes, and window enumeration"
}

// Capabilities implements capability.Module.
func (m *Module) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			ID:          "system.screenshot",
			Description: "Take a screenshot of the current screen",
		},
		{
			ID:          "system.status",
			Description: "Get current system status including time, platform, and uptime",
		},
		{
			ID:          "system.add_note",
			Description: "Save a note for later reference",
			Parameters: map[string]interface{}{
				"content": capability.Param("string", "The note content to save", true),
			},
		},
		{
			ID:          "system.get_notes",
			Description: "Retrieve saved notes",
			Parameters: map[string]interface{}{
				"limit": capability.Param("number", "Number of notes to retrieve (default 10)", false),
			},
		},
		{
			ID:          "system.list_windows",
			Description: "List all open windows on the system",
		},
	}
}

// Execute implements capability.Module.
func (m *Module) Execute(ctx context.Context, action string, params map[string]interface{}) (capability.Result, error) {
	switch action {
	case "screenshot":
		return m.screenshot(ctx)
	case "status":
		return m.status(), nil
	case "add_note":
		return m.addNote(ctx, params)
	case "get_notes":
		return m.getNotes(ctx, params)
	case "list_windows":
		return m.listWindows(ctx)
	default:
		return capability.Result{}, fmt.Errorf("unknown action: %s", action)
	}
}

// State implements capability.Module.
func (m *Module) State(ctx context.Context) map[string]interface{} {
	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"hostname":   hostname,
		"platform":   runtime.GOOS,
		"uptime":     time.Since(m.startedAt).Round(time.Second).String(),
		"started_at": m.startedAt.Format(time.RFC3339),
	}
}

func (m *Module) screenshot(ctx context.Context) (capability.Result, error) {
	path := filepath.Join(m.screenshotDir,
		fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405")))

	args := append(append([]string{}, m.captureCommand[1:]...), path)
	cmd := exec.CommandContext(ctx, m.captureCommand[0], args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return capability.Result{}, fmt.Errorf("screenshot capture failed: %v (%s)",
			err, strings.TrimSpace(string(output)))
	}

	return capability.Result{
		Message:        "Screenshot taken successfully",
		ScreenshotPath: path,
		Data:           map[string]interface{}{"path": path},
	}, nil
}

func (m *Module) status() capability.Result {
	hostname, _ := os.Hostname()
	info := map[string]interface{}{
		"time":     time.Now().Format(time.RFC3339),
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"uptime":   time.Since(m.startedAt).Round(time.Second).String(),
		"status":   "online",
	}
	return capability.Result{
		Message: fmt.Sprintf("Jarvis online on %s (%s), up %s", hostname, runtime.GOOS, info["uptime"]),
		Data:    info,
	}
}

func (m *Module) addNote(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	if m.notes == nil {
		return capability.Result{}, fmt.Errorf("note storage is not configured")
	}
	content, _ := params["content"].(string)
	id, err := m.notes.AddNote(ctx, content)
	if err != nil {
		return capability.Result{}, fmt.Errorf("failed to save note: %w", err)
	}
	return capability.Result{
		Message: "Note saved",
		Data:    map[string]interface{}{"note_id": id},
	}, nil
}

func (m *Module) getNotes(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	if m.notes == nil {
		return capability.Result{}, fmt.Errorf("note storage is not configured")
	}
	limit := 10
	if v, ok := params["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	notes, err := m.notes.Notes(ctx, limit)
	if err != nil {
		return capability.Result{}, fmt.Errorf("failed to load notes: %w", err)
	}

	var lines []string
	items := make([]interface{}, 0, len(notes))
	for _, note := range notes {
		lines = append(lines, fmt.Sprintf("- %s (%s)", note.Content, note.Timestamp.Format("2006-01-02 15:04")))
		items = append(items, map[string]interface{}{
			"id":        note.ID,
			"content":   note.Content,
			"timestamp": note.Timestamp.Format(time.RFC3339),
		})
	}
	message := "No notes saved yet."
	if len(lines) > 0 {
		message = fmt.Sprintf("Your notes:\n%s", strings.Join(lines, "\n"))
	}
	return capability.Result{
		Message: message,
		Data:    map[string]interface{}{"notes": items},
	}, nil
}

func (m *Module) listWindows(ctx context.Context) (capability.Result, error) {
	output, err := exec.CommandContext(ctx, "wmctrl", "-l").Output()
	if err != nil {
		return capability.Result{}, fmt.Errorf("window enumeration failed (is wmctrl installed?): %w", err)
	}

	var titles []interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		// wmctrl -l: <id> <desktop> <host> <title...>
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			titles = append(titles, strings.Join(fields[3:], " "))
		}
	}
	return capability.Result{
		Message: fmt.Sprintf("%d windows open", len(titles)),
		Data:    map[string]interface{}{"windows": titles},
	}, nil
}
