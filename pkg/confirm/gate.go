package confirm

import (
	"strings"
	"sync"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Reply word sets understood as confirmation decisions.
var (
	affirmative = map[string]bool{
		"yes": true, "y": true, "confirm": true, "ok": true, "do it": true,
	}
	negative = map[string]bool{
		"no": true, "n": true, "cancel": true, "abort": true,
	}
)

// Decision classifies a reply against a pending confirmation.
type Decision int

const (
	// DecisionNone means the reply is not a confirmation decision, or
	// there is nothing pending for the requester.
	DecisionNone Decision = iota
	// DecisionConfirmed releases the stored request for dispatch.
	DecisionConfirmed
	// DecisionDenied discards the stored request.
	DecisionDenied
	// DecisionExpired means a pending request existed but its window
	// had already elapsed when the reply arrived. Expiry wins.
	DecisionExpired
)

// pending is one stored request awaiting confirmation.
type pending struct {
	request   capability.ActionRequest
	createdAt time.Time
	expiresAt time.Time
}

// Gate is the per-requester confirmation state machine. A requester is
// either Idle (no entry in the map) or PendingConfirmation (one stored
// request). State is single-shot: any transition out of pending clears
// it entirely, so the next unrelated message is never re-prompted.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pending
	ttl     time.Duration
	logger  zerolog.Logger

	ttlSource func() time.Duration
	onExpire  func(capability.ActionRequest)
	onPending func(count int)
}

// Config holds gate configuration.
type Config struct {
	// TTL is the confirmation window; a pending request older than
	// this is expired, never dispatched.
	TTL    time.Duration
	Logger zerolog.Logger

	// TTLSource, when set, is consulted on every Hold so a policy
	// reload changes the window without a restart. TTL remains the
	// fallback when the source returns zero.
	TTLSource func() time.Duration

	// OnExpire is invoked (outside the gate lock) for each request
	// discarded by the expiry sweep, so the caller can audit it.
	OnExpire func(capability.ActionRequest)

	// OnPending is invoked (outside the gate lock) with the number of
	// pending confirmations whenever that number may have changed.
	OnPending func(count int)
}

// NewGate creates a confirmation gate.
func NewGate(cfg Config) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	return &Gate{
		pending:   make(map[string]*pending),
		ttl:       cfg.TTL,
		logger:    cfg.Logger.With().Str("component", "confirm").Logger(),
		ttlSource: cfg.TTLSource,
		onExpire:  cfg.OnExpire,
		onPending: cfg.OnPending,
	}
}

// window returns the confirmation TTL for a new hold.
func (g *Gate) window() time.Duration {
	if g.ttlSource != nil {
		if ttl := g.ttlSource(); ttl > 0 {
			return ttl
		}
	}
	return g.ttl
}

func (g *Gate) notifyPending(count int) {
	if g.onPending != nil {
		g.onPending(count)
	}
}

// Hold stores a dangerous request for its requester, replacing any
// unconfirmed one. The superseded request is discarded silently; it is
// never dispatched and never separately audited. Returns the superseded
// request, if any, for logging.
func (g *Gate) Hold(req capability.ActionRequest) (superseded *capability.ActionRequest) {
	now := time.Now()
	ttl := g.window()

	g.mu.Lock()

	if old, ok := g.pending[req.Requester]; ok {
		prev := old.request
		superseded = &prev
	}
	g.pending[req.Requester] = &pending{
		request:   req,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	count := len(g.pending)

	g.mu.Unlock()
	g.notifyPending(count)

	g.logger.Info().
		Str("requester", req.Requester).
		Str("capability", req.Capability).
		Time("expires_at", now.Add(ttl)).
		Msg("Holding request for confirmation")

	return superseded
}

// Pending returns the request currently awaiting confirmation for a
// requester, if any and not yet expired.
func (g *Gate) Pending(requester string) (capability.ActionRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[requester]
	if !ok || time.Now().After(p.expiresAt) {
		return capability.ActionRequest{}, false
	}
	return p.request, true
}

// Resolve interprets a reply from a requester against their pending
// confirmation. The returned request is only valid for
// DecisionConfirmed and DecisionExpired (the latter for auditing).
//
// Confirmation state is requester-scoped: a reply from requester B can
// never release a request held for requester A, because the lookup is
// keyed by the replying requester's identity.
func (g *Gate) Resolve(requester, reply string) (capability.ActionRequest, Decision) {
	word := strings.ToLower(strings.TrimSpace(reply))
	isYes := affirmative[word]
	isNo := negative[word]

	// Registered before the unlock defer so it fires outside the lock.
	count := -1
	defer func() {
		if count >= 0 {
			g.notifyPending(count)
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[requester]
	if !ok {
		return capability.ActionRequest{}, DecisionNone
	}

	// Expiry wins even if the reply arrives just after the window, and
	// even for a non-decision reply: the stale entry is cleared so it
	// can never re-surface on a later turn.
	if time.Now().After(p.expiresAt) {
		delete(g.pending, requester)
		count = len(g.pending)
		g.logger.Info().
			Str("requester", requester).
			Str("capability", p.request.Capability).
			Msg("Pending confirmation expired")
		return p.request, DecisionExpired
	}

	switch {
	case isYes:
		delete(g.pending, requester)
		count = len(g.pending)
		g.logger.Info().
			Str("requester", requester).
			Str("capability", p.request.Capability).
			Msg("Confirmation granted")
		return p.request, DecisionConfirmed
	case isNo:
		delete(g.pending, requester)
		count = len(g.pending)
		g.logger.Info().
			Str("requester", requester).
			Str("capability", p.request.Capability).
			Msg("Confirmation denied")
		return p.request, DecisionDenied
	default:
		// Not a decision; the pending request stays put until it is
		// answered, superseded or expired.
		return capability.ActionRequest{}, DecisionNone
	}
}

// Sweep removes all expired pending confirmations, invoking OnExpire
// for each discarded request. Returns the number discarded. Driven
// periodically by the scheduler; Resolve also expires lazily.
func (g *Gate) Sweep() int {
	now := time.Now()

	g.mu.Lock()
	var expired []capability.ActionRequest
	for requester, p := range g.pending {
		if now.After(p.expiresAt) {
			expired = append(expired, p.request)
			delete(g.pending, requester)
		}
	}
	remaining := len(g.pending)
	g.mu.Unlock()

	if len(expired) > 0 {
		g.notifyPending(remaining)
	}

	for _, req := range expired {
		g.logger.Info().
			Str("requester", req.Requester).
			Str("capability", req.Capability).
			Msg("Swept expired confirmation")
		if g.onExpire != nil {
			g.onExpire(req)
		}
	}
	return len(expired)
}

// IsAffirmative reports whether a reply counts as a confirmation.
func IsAffirmative(reply string) bool {
	return affirmative[strings.ToLower(strings.TrimSpace(reply))]
}

// IsNegative reports whether a reply counts as a denial.
func IsNegative(reply string) bool {
	return negative[strings.ToLower(strings.TrimSpace(reply))]
}
