package owner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(Config{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s
}

func TestStore_FirstCallerBecomesOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.json")
	s := newTestStore(t, path)

	assert.False(t, s.Claimed())
	require.NoError(t, s.Claim("12345", "Ilja"))

	assert.True(t, s.Claimed())
	assert.Equal(t, "12345", s.Owner())
	assert.True(t, s.IsOwner("12345"))
	assert.False(t, s.IsOwner("99999"))
}

func TestStore_SecondClaimRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.json")
	s := newTestStore(t, path)

	require.NoError(t, s.Claim("12345", ""))

	err := s.Claim("99999", "")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// Re-claiming by the same identity is a no-op.
	assert.NoError(t, s.Claim("12345", ""))
	assert.Equal(t, "12345", s.Owner())
}

func TestStore_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.json")

	s1 := newTestStore(t, path)
	require.NoError(t, s1.Claim("12345", "Ilja"))

	s2 := newTestStore(t, path)
	assert.Equal(t, "12345", s2.Owner())
	assert.ErrorIs(t, s2.Claim("99999", ""), ErrAlreadyClaimed)
}

func TestStore_CorruptFileIsStartupError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(Config{Path: path, Logger: zerolog.Nop()})
	assert.Error(t, err)
}
