package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ExpiresPendingConfirmations(t *testing.T) {
	expired := make(chan capability.ActionRequest, 1)
	gate := confirm.NewGate(confirm.Config{
		TTL:      10 * time.Millisecond,
		Logger:   zerolog.Nop(),
		OnExpire: func(req capability.ActionRequest) { expired <- req },
	})
	gate.Hold(capability.ActionRequest{Capability: "home.unlock_door", Requester: "alice"})

	s, err := New(Config{Gate: gate, Logger: zerolog.Nop()})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	// The job runs every ten seconds; trigger directly rather than wait.
	time.Sleep(30 * time.Millisecond)
	s.sweepConfirmations()

	select {
	case req := <-expired:
		assert.Equal(t, "home.unlock_door", req.Capability)
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestSweeper_PrunesOldAuditRecords(t *testing.T) {
	store, err := audit.NewStore(audit.Config{
		DBPath: filepath.Join(t.TempDir(), "audit.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Append(ctx, audit.Record{
		Requester:  "alice",
		Capability: "system.status",
		Outcome:    audit.OutcomeSuccess,
	})
	require.NoError(t, err)

	s, err := New(Config{Audit: store, RetentionDays: 30, Logger: zerolog.Nop()})
	require.NoError(t, err)

	// Fresh records survive the prune.
	s.pruneAudit()
	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSweeper_NoJobsWithoutDeps(t *testing.T) {
	s, err := New(Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
