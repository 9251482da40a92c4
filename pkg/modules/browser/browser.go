// Package browser provides the browser automation module backed by a
// Chromium instance driven over CDP.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Module implements the "browser" capability provider. The browser
// process is launched lazily on first use and shared across requests.
type Module struct {
	screenshotDir string
	headless      bool
	logger        zerolog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// Config holds browser module configuration.
type Config struct {
	ScreenshotDir string
	Headless      bool
	Logger        zerolog.Logger
}

// New creates the browser module.
func New(cfg Config) *Module {
	dir := cfg.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Module{
		screenshotDir: dir,
		headless:      cfg.Headless,
		logger:        cfg.Logger.With().Str("module", "browser").Logger(),
	}
}

// Name implements capability.Module.
func (m *Module) Name() string { return "browser" }

// Description implements capability.Module.
func (m *Module) Description() string {
	return "Web browser control: open pages, read them, take page screenshots"
}

// Capabilities implements capability.Module.
func (m *Module) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			ID:          "browser.open",
			Description: "Open a URL in the browser",
			Parameters: map[string]interface{}{
				"url": capability.Param("string", "URL to open", true),
			},
		},
		{
			ID:          "browser.screenshot",
			Description: "Take a screenshot of the current browser page",
		},
		{
			ID:          "browser.read_page",
			Description: "Extract the visible text of the current browser page",
		},
		{
			ID:          "browser.close",
			Description: "Close the browser",
		},
	}
}

// Execute implements capability.Module.
func (m *Module) Execute(ctx context.Context, action string, params map[string]interface{}) (capability.Result, error) {
	switch action {
	case "open":
		return m.open(ctx, params)
	case "screenshot":
		return m.screenshot(ctx)
	case "read_page":
		return m.readPage(ctx)
	case "close":
		return m.close()
	default:
		return capability.Result{}, fmt.Errorf("unknown action: %s", action)
	}
}

// State implements capability.Module.
func (m *Module) State(ctx context.Context) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := map[string]interface{}{
		"running": m.browser != nil,
	}
	if m.page != nil {
		if info, err := m.page.Info(); err == nil {
			state["url"] = info.URL
			state["title"] = info.Title
		}
	}
	return state
}

// ensureBrowser launches Chromium on first use.
func (m *Module) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return m.browser, nil
	}

	url, err := launcher.New().Headless(m.headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	m.browser = browser
	m.logger.Info().Bool("headless", m.headless).Msg("Browser launched")
	return browser, nil
}

func (m *Module) currentPage() (*rod.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil, fmt.Errorf("no page is open; open a URL first")
	}
	return m.page, nil
}

func (m *Module) open(ctx context.Context, params map[string]interface{}) (capability.Result, error) {
	url, _ := params["url"].(string)

	browser, err := m.ensureBrowser()
	if err != nil {
		return capability.Result{}, err
	}

	m.mu.Lock()
	page := m.page
	m.mu.Unlock()

	if page == nil {
		page, err = browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
		if err != nil {
			return capability.Result{}, fmt.Errorf("failed to open page: %w", err)
		}
		m.mu.Lock()
		m.page = page
		m.mu.Unlock()
	} else if err := page.Context(ctx).Navigate(url); err != nil {
		return capability.Result{}, fmt.Errorf("failed to navigate: %w", err)
	}

	if err := page.Context(ctx).WaitLoad(); err != nil {
		return capability.Result{}, fmt.Errorf("page did not finish loading: %w", err)
	}

	return capability.Result{
		Message: fmt.Sprintf("Opened %s", url),
		Data:    map[string]interface{}{"url": url},
	}, nil
}

func (m *Module) screenshot(ctx context.Context) (capability.Result, error) {
	page, err := m.currentPage()
	if err != nil {
		return capability.Result{}, err
	}

	data, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return capability.Result{}, fmt.Errorf("failed to capture page screenshot: %w", err)
	}

	path := filepath.Join(m.screenshotDir,
		fmt.Sprintf("browser_%s.png", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return capability.Result{}, fmt.Errorf("failed to write screenshot: %w", err)
	}

	return capability.Result{
		Message:        "Page screenshot taken",
		ScreenshotPath: path,
		Data:           map[string]interface{}{"path": path},
	}, nil
}

func (m *Module) readPage(ctx context.Context) (capability.Result, error) {
	page, err := m.currentPage()
	if err != nil {
		return capability.Result{}, err
	}

	el, err := page.Context(ctx).Element("body")
	if err != nil {
		return capability.Result{}, fmt.Errorf("failed to read page: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return capability.Result{}, fmt.Errorf("failed to extract text: %w", err)
	}

	const maxChars = 4000
	if len(text) > maxChars {
		text = text[:maxChars] + "..."
	}
	return capability.Result{
		Message: "Page text extracted",
		Data:    map[string]interface{}{"text": text},
	}, nil
}

func (m *Module) close() (capability.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return capability.Result{Message: "Browser is not running"}, nil
	}
	if err := m.browser.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Browser close reported an error")
	}
	m.browser = nil
	m.page = nil
	return capability.Result{Message: "Browser closed"}, nil
}
