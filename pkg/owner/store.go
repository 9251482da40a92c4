package owner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyClaimed is returned when a second identity tries to claim
// ownership after the slot was taken.
var ErrAlreadyClaimed = errors.New("owner already claimed")

// record is the persisted shape of the owner identity.
type record struct {
	Identity  string    `json:"identity"`
	Name      string    `json:"name,omitempty"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Store holds the process-wide owner identity: empty at first start,
// set exactly once on first contact, persisted across restarts.
// Single writer, many readers.
type Store struct {
	mu     sync.RWMutex
	path   string
	owner  *record
	logger zerolog.Logger
}

// Config holds owner store configuration.
type Config struct {
	// Path is the JSON file the identity is persisted to.
	Path   string
	Logger zerolog.Logger
}

// NewStore loads the persisted owner identity if one exists.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("owner file path is required")
	}

	s := &Store{
		path:   cfg.Path,
		logger: cfg.Logger.With().Str("component", "owner").Logger(),
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No owner yet; first contact will claim.
	case err != nil:
		return nil, fmt.Errorf("failed to read owner file: %w", err)
	default:
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("corrupt owner file %s: %w", cfg.Path, err)
		}
		if rec.Identity != "" {
			s.owner = &rec
			s.logger.Info().Str("owner", rec.Identity).Msg("Loaded persisted owner")
		}
	}

	return s, nil
}

// Claim sets the owner to the given identity if the slot is free and
// persists it. Claiming an already-owned slot with the same identity is
// a no-op; with a different identity it fails.
func (s *Store) Claim(identity, name string) error {
	if identity == "" {
		return errors.New("identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != nil {
		if s.owner.Identity == identity {
			return nil
		}
		return fmt.Errorf("%w: by %s", ErrAlreadyClaimed, s.owner.Identity)
	}

	rec := &record{
		Identity:  identity,
		Name:      name,
		ClaimedAt: time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create owner directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode owner record: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to persist owner record: %w", err)
	}

	s.owner = rec
	s.logger.Info().Str("owner", identity).Str("name", name).Msg("Owner claimed")
	return nil
}

// Owner returns the current owner identity, or "" when unclaimed.
func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owner == nil {
		return ""
	}
	return s.owner.Identity
}

// Claimed reports whether an owner exists.
func (s *Store) Claimed() bool {
	return s.Owner() != ""
}

// IsOwner reports whether the given identity is the owner.
func (s *Store) IsOwner(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner != nil && s.owner.Identity == identity
}
