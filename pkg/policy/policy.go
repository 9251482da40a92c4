package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// fileFormat is the on-disk shape of the danger policy.
type fileFormat struct {
	// Dangerous lists capability IDs flagged dangerous in addition to
	// the flags modules declare themselves.
	Dangerous []string `json:"dangerous"`
	// ConfirmationTTL is the confirmation window, e.g. "2m".
	ConfirmationTTL string `json:"confirmation_ttl,omitempty"`
}

// Policy is the deployment-level danger policy: which capabilities need
// confirmation beyond what their modules declare, and how long a
// confirmation stays valid. The exact list and window are deployment
// policy, not core logic, so they live in a config file that can be
// edited while the agent runs.
type Policy struct {
	mu        sync.RWMutex
	path      string
	dangerous map[string]bool
	ttl       time.Duration
	logger    zerolog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// Config holds policy configuration.
type Config struct {
	// Path of the policy file. Missing file means empty overrides.
	Path string
	// DefaultTTL applies when the file does not set one.
	DefaultTTL time.Duration
	Logger     zerolog.Logger
}

// New loads the policy file and prepares (but does not start) the
// hot-reload watcher.
func New(cfg Config) (*Policy, error) {
	if cfg.Path == "" {
		return nil, errors.New("policy file path is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 2 * time.Minute
	}

	p := &Policy{
		path:      cfg.Path,
		dangerous: make(map[string]bool),
		ttl:       cfg.DefaultTTL,
		logger:    cfg.Logger.With().Str("component", "policy").Logger(),
		done:      make(chan struct{}),
	}

	if err := p.reload(cfg.DefaultTTL); err != nil {
		return nil, err
	}
	return p, nil
}

// reload reads the policy file into memory. A missing file is an empty
// policy, not an error.
func (p *Policy) reload(defaultTTL time.Duration) error {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("malformed policy file %s: %w", p.path, err)
	}

	dangerous := make(map[string]bool, len(file.Dangerous))
	for _, id := range file.Dangerous {
		dangerous[id] = true
	}

	ttl := defaultTTL
	if file.ConfirmationTTL != "" {
		parsed, err := time.ParseDuration(file.ConfirmationTTL)
		if err != nil {
			return fmt.Errorf("invalid confirmation_ttl %q: %w", file.ConfirmationTTL, err)
		}
		ttl = parsed
	}

	p.mu.Lock()
	p.dangerous = dangerous
	p.ttl = ttl
	p.mu.Unlock()

	p.logger.Info().
		Int("dangerous_overrides", len(dangerous)).
		Dur("confirmation_ttl", ttl).
		Msg("Danger policy loaded")
	return nil
}

// Watch starts hot-reloading the policy file on change. A reload
// failure keeps the previous policy in effect.
func (p *Policy) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	p.watcher = watcher

	// Watch the directory: editors replace files rather than write
	// them in place, which would drop a file-level watch.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	go p.eventLoop()
	return nil
}

func (p *Policy) eventLoop() {
	defaultTTL := p.TTL()
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.reload(defaultTTL); err != nil {
				p.logger.Warn().Err(err).Msg("Policy reload failed; keeping previous policy")
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn().Err(err).Msg("Policy watcher error")
		}
	}
}

// Stop stops the hot-reload watcher.
func (p *Policy) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.watcher != nil {
			p.watcher.Close()
		}
	})
}

// Dangerous reports whether a capability needs confirmation, combining
// the module-declared flag with the file overrides.
func (p *Policy) Dangerous(capabilityID string, declared bool) bool {
	if declared {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dangerous[capabilityID]
}

// TTL returns the confirmation window currently in effect.
func (p *Policy) TTL() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ttl
}
