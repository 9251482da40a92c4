package confirm

import (
	"sync"
	"testing"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(ttl time.Duration) *Gate {
	return NewGate(Config{TTL: ttl, Logger: zerolog.Nop()})
}

func dangerousRequest(requester, cap string) capability.ActionRequest {
	return capability.ActionRequest{
		Capability: cap,
		Requester:  requester,
		Params:     map[string]interface{}{},
		CreatedAt:  time.Now(),
	}
}

func TestGate_ConfirmReleasesRequest(t *testing.T) {
	g := newTestGate(time.Minute)
	g.Hold(dangerousRequest("owner", "kali.run_command"))

	req, decision := g.Resolve("owner", "yes")
	assert.Equal(t, DecisionConfirmed, decision)
	assert.Equal(t, "kali.run_command", req.Capability)

	// Single-shot: the next reply finds nothing pending.
	_, decision = g.Resolve("owner", "yes")
	assert.Equal(t, DecisionNone, decision)
}

func TestGate_DenyDiscardsRequest(t *testing.T) {
	g := newTestGate(time.Minute)
	g.Hold(dangerousRequest("owner", "system.delete_notes"))

	req, decision := g.Resolve("owner", "no")
	assert.Equal(t, DecisionDenied, decision)
	assert.Equal(t, "system.delete_notes", req.Capability)

	_, ok := g.Pending("owner")
	assert.False(t, ok)
}

func TestGate_AffirmativeWords(t *testing.T) {
	for _, word := range []string{"yes", "y", "confirm", "ok", "do it", "YES", " Yes "} {
		g := newTestGate(time.Minute)
		g.Hold(dangerousRequest("owner", "kali.run_command"))
		_, decision := g.Resolve("owner", word)
		assert.Equal(t, DecisionConfirmed, decision, "word %q", word)
	}
}

func TestGate_NonDecisionReplyKeepsPending(t *testing.T) {
	g := newTestGate(time.Minute)
	g.Hold(dangerousRequest("owner", "kali.run_command"))

	_, decision := g.Resolve("owner", "what does it do?")
	assert.Equal(t, DecisionNone, decision)

	_, ok := g.Pending("owner")
	assert.True(t, ok, "pending request must survive a non-decision reply")
}

func TestGate_RequesterScoped(t *testing.T) {
	g := newTestGate(time.Minute)
	g.Hold(dangerousRequest("alice", "kali.run_command"))

	// A confirmation from bob must never release alice's request.
	_, decision := g.Resolve("bob", "yes")
	assert.Equal(t, DecisionNone, decision)

	_, ok := g.Pending("alice")
	assert.True(t, ok)
}

func TestGate_SupersessionReplacesSilently(t *testing.T) {
	g := newTestGate(time.Minute)

	first := g.Hold(dangerousRequest("owner", "kali.run_command"))
	assert.Nil(t, first)

	superseded := g.Hold(dangerousRequest("owner", "kali.start_service"))
	require.NotNil(t, superseded)
	assert.Equal(t, "kali.run_command", superseded.Capability)

	// Only the second request is eligible for dispatch.
	req, decision := g.Resolve("owner", "yes")
	assert.Equal(t, DecisionConfirmed, decision)
	assert.Equal(t, "kali.start_service", req.Capability)
}

func TestGate_ExpiryWins(t *testing.T) {
	g := newTestGate(20 * time.Millisecond)
	g.Hold(dangerousRequest("owner", "kali.run_command"))

	time.Sleep(40 * time.Millisecond)

	// A confirmation arriving after expiry must not dispatch.
	req, decision := g.Resolve("owner", "yes")
	assert.Equal(t, DecisionExpired, decision)
	assert.Equal(t, "kali.run_command", req.Capability)

	// And the stale prompt must not re-surface on the next message.
	_, decision = g.Resolve("owner", "what time is it")
	assert.Equal(t, DecisionNone, decision)
}

func TestGate_PendingHidesExpired(t *testing.T) {
	g := newTestGate(20 * time.Millisecond)
	g.Hold(dangerousRequest("owner", "kali.run_command"))

	time.Sleep(40 * time.Millisecond)

	_, ok := g.Pending("owner")
	assert.False(t, ok)
}

func TestGate_SweepInvokesOnExpire(t *testing.T) {
	var mu sync.Mutex
	var expired []capability.ActionRequest

	g := NewGate(Config{
		TTL:    20 * time.Millisecond,
		Logger: zerolog.Nop(),
		OnExpire: func(req capability.ActionRequest) {
			mu.Lock()
			expired = append(expired, req)
			mu.Unlock()
		},
	})

	g.Hold(dangerousRequest("alice", "kali.run_command"))
	g.Hold(dangerousRequest("bob", "kali.start_service"))

	time.Sleep(40 * time.Millisecond)

	n := g.Sweep()
	assert.Equal(t, 2, n)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, expired, 2)

	// Swept entries are gone for good.
	_, decision := g.Resolve("alice", "yes")
	assert.Equal(t, DecisionNone, decision)
}

func TestGate_TTLSourceReadPerHold(t *testing.T) {
	var mu sync.Mutex
	ttl := time.Millisecond

	g := NewGate(Config{
		TTL:    time.Minute,
		Logger: zerolog.Nop(),
		TTLSource: func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return ttl
		},
	})

	// Held under the 1ms window: gone by the time the reply lands.
	g.Hold(dangerousRequest("owner", "kali.run_command"))
	time.Sleep(20 * time.Millisecond)
	_, decision := g.Resolve("owner", "yes")
	assert.Equal(t, DecisionExpired, decision)

	// Widening the source must apply to the next hold without any
	// reconstruction of the gate.
	mu.Lock()
	ttl = time.Minute
	mu.Unlock()

	g.Hold(dangerousRequest("owner", "kali.run_command"))
	time.Sleep(20 * time.Millisecond)
	_, decision = g.Resolve("owner", "yes")
	assert.Equal(t, DecisionConfirmed, decision)
}

func TestGate_OnPendingTracksCount(t *testing.T) {
	var mu sync.Mutex
	var counts []int

	g := NewGate(Config{
		TTL:    time.Minute,
		Logger: zerolog.Nop(),
		OnPending: func(count int) {
			mu.Lock()
			counts = append(counts, count)
			mu.Unlock()
		},
	})

	g.Hold(dangerousRequest("alice", "kali.run_command"))
	g.Hold(dangerousRequest("bob", "kali.start_service"))
	g.Hold(dangerousRequest("alice", "kali.run_command")) // supersession, count unchanged
	g.Resolve("alice", "yes")
	g.Resolve("bob", "no")
	g.Resolve("bob", "hello") // nothing pending, no notification

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 2, 1, 0}, counts)
}

func TestGate_OnPendingOnSweep(t *testing.T) {
	var mu sync.Mutex
	last := -1

	g := NewGate(Config{
		TTL:    10 * time.Millisecond,
		Logger: zerolog.Nop(),
		OnPending: func(count int) {
			mu.Lock()
			last = count
			mu.Unlock()
		},
	})

	g.Hold(dangerousRequest("alice", "kali.run_command"))
	g.Hold(dangerousRequest("bob", "kali.start_service"))
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, 2, g.Sweep())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, last)
}

func TestGate_ConcurrentHoldAndResolve(t *testing.T) {
	g := newTestGate(time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	confirmed := 0

	// Concurrent supersession and confirmation for the same requester
	// must never double-dispatch: at most one Resolve can succeed per
	// held request.
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Hold(dangerousRequest("owner", "kali.run_command"))
			if _, d := g.Resolve("owner", "yes"); d == DecisionConfirmed {
				mu.Lock()
				confirmed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, confirmed, 50)
	_, hasPending := g.Pending("owner")
	if hasPending {
		// A hold that raced after the last resolve may remain; it must
		// still be confirmable exactly once.
		_, d := g.Resolve("owner", "yes")
		assert.Equal(t, DecisionConfirmed, d)
	}
	_, d := g.Resolve("owner", "yes")
	assert.Equal(t, DecisionNone, d)
}
