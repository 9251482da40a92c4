package assistant

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/ilja/jarvis/pkg/dispatch"
	"github.com/ilja/jarvis/pkg/interpret"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns canned completions in order and records the
// last request it saw.
type scriptedProvider struct {
	outputs     []string
	calls       int
	lastRequest interpret.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req interpret.CompletionRequest) (string, error) {
	p.lastRequest = req
	if p.calls >= len(p.outputs) {
		return "", fmt.Errorf("no scripted output left")
	}
	out := p.outputs[p.calls]
	p.calls++
	return out, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

// toyModule counts executions of its two capabilities.
type toyModule struct {
	calls map[string]int
}

func (m *toyModule) Name() string        { return "home" }
func (m *toyModule) Description() string { return "toy home module" }

func (m *toyModule) Capabilities() []capability.Capability {
	return []capability.Capability{
		{ID: "home.lights_on", Description: "Turn lights on"},
		{ID: "home.unlock_door", Description: "Unlock the front door", Dangerous: true},
	}
}

func (m *toyModule) Execute(_ context.Context, action string, _ map[string]interface{}) (capability.Result, error) {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[action]++
	return capability.Result{Message: "did " + action}, nil
}

func (m *toyModule) State(context.Context) map[string]interface{} { return nil }

func actionJSON(capID string) string {
	return fmt.Sprintf(`{"thought":"t","action":{"capability":%q,"params":{}},"response":"on it"}`, capID)
}

type fixture struct {
	assistant *Assistant
	module    *toyModule
	provider  *scriptedProvider
	store     *audit.Store
}

func newFixture(t *testing.T, ttl time.Duration, outputs ...string) *fixture {
	t.Helper()

	module := &toyModule{}
	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(module))

	store, err := audit.NewStore(audit.Config{
		DBPath: filepath.Join(t.TempDir(), "audit.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider := &scriptedProvider{outputs: outputs}
	interpreter, err := interpret.New(interpret.Config{
		Registry: registry,
		Provider: provider,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry: registry,
		Audit:    store,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	a, err := New(Config{
		Registry:    registry,
		Interpreter: interpreter,
		Gate:        confirm.NewGate(confirm.Config{TTL: ttl, Logger: zerolog.Nop()}),
		Dispatcher:  dispatcher,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	return &fixture{assistant: a, module: module, provider: provider, store: store}
}

func TestHandleMessage_SafeActionRunsImmediately(t *testing.T) {
	f := newFixture(t, time.Minute, actionJSON("home.lights_on"))

	reply := f.assistant.HandleMessage(context.Background(), "alice", "turn on the lights")
	assert.Equal(t, "did lights_on", reply.Text)
	assert.False(t, reply.NeedsConfirmation)
	assert.Equal(t, 1, f.module.calls["lights_on"])

	records, err := f.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeSuccess, records[0].Outcome)
}

func TestHandleMessage_DangerousActionNeedsConfirmation(t *testing.T) {
	f := newFixture(t, time.Minute, actionJSON("home.unlock_door"))
	ctx := context.Background()

	reply := f.assistant.HandleMessage(ctx, "alice", "unlock the door")
	assert.True(t, reply.NeedsConfirmation)
	assert.Zero(t, f.module.calls["unlock_door"], "nothing runs before confirmation")

	reply = f.assistant.HandleMessage(ctx, "alice", "yes")
	assert.Equal(t, "did unlock_door", reply.Text)
	assert.Equal(t, 1, f.module.calls["unlock_door"])

	records, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeSuccess, records[0].Outcome)
}

func TestHandleMessage_DenialIsAudited(t *testing.T) {
	f := newFixture(t, time.Minute, actionJSON("home.unlock_door"))
	ctx := context.Background()

	f.assistant.HandleMessage(ctx, "alice", "unlock the door")
	reply := f.assistant.HandleMessage(ctx, "alice", "no")
	assert.Contains(t, reply.Text, "won't run")
	assert.Zero(t, f.module.calls["unlock_door"])

	records, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeDenied, records[0].Outcome)
}

func TestHandleMessage_ExpiredConfirmationNeverRuns(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond, actionJSON("home.unlock_door"))
	ctx := context.Background()

	f.assistant.HandleMessage(ctx, "alice", "unlock the door")
	time.Sleep(30 * time.Millisecond)

	reply := f.assistant.HandleMessage(ctx, "alice", "yes")
	assert.Contains(t, reply.Text, "expired")
	assert.Zero(t, f.module.calls["unlock_door"])

	records, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeExpired, records[0].Outcome)
}

func TestHandleMessage_NonDecisionAfterExpiryIsInterpreted(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond,
		actionJSON("home.unlock_door"),
		actionJSON("home.lights_on"))
	ctx := context.Background()

	f.assistant.HandleMessage(ctx, "alice", "unlock the door")
	time.Sleep(30 * time.Millisecond)

	// A fresh request after expiry is its own utterance, not a reply.
	reply := f.assistant.HandleMessage(ctx, "alice", "turn on the lights")
	assert.Equal(t, "did lights_on", reply.Text)

	records, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2, "expired record plus the new dispatch")
}

func TestHandleMessage_ConfirmationIsRequesterScoped(t *testing.T) {
	f := newFixture(t, time.Minute,
		actionJSON("home.unlock_door"),
		`{"thought":"t","action":null,"response":"Nothing pending for you."}`)
	ctx := context.Background()

	f.assistant.HandleMessage(ctx, "alice", "unlock the door")

	// Bob's "yes" is just a message of his own.
	f.assistant.HandleMessage(ctx, "bob", "yes")
	assert.Zero(t, f.module.calls["unlock_door"])

	// Alice can still confirm.
	reply := f.assistant.HandleMessage(ctx, "alice", "yes")
	assert.Equal(t, 1, f.module.calls["unlock_door"])
	assert.Equal(t, "did unlock_door", reply.Text)
}

func TestHandleMessage_ClarifyPassesThrough(t *testing.T) {
	f := newFixture(t, time.Minute,
		`{"thought":"unclear","action":null,"response":"Which door do you mean?"}`)

	reply := f.assistant.HandleMessage(context.Background(), "alice", "do the thing")
	assert.Equal(t, "Which door do you mean?", reply.Text)

	records, err := f.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records, "clarifications are not dispatch attempts")
}

func TestHandleMessage_HistoryReachesInterpreter(t *testing.T) {
	f := newFixture(t, time.Minute,
		actionJSON("home.lights_on"),
		actionJSON("home.lights_on"))
	ctx := context.Background()

	f.assistant.HandleMessage(ctx, "alice", "turn on the lights")
	f.assistant.HandleMessage(ctx, "alice", "again please")

	assert.Contains(t, f.provider.lastRequest.SystemPrompt, "turn on the lights",
		"earlier exchange appears in the prompt context")
	require.Len(t, f.provider.lastRequest.Messages, 1)
	assert.Equal(t, "again please", f.provider.lastRequest.Messages[0].Content)
}

func TestHandleExpiry_RecordsAndAnnounces(t *testing.T) {
	f := newFixture(t, time.Minute)

	text := f.assistant.HandleExpiry(capability.ActionRequest{
		Capability: "home.unlock_door",
		Requester:  "alice",
	})
	assert.Contains(t, text, "expired")

	records, err := f.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeExpired, records[0].Outcome)
}

func TestHandleMessage_DegradedAuditWarnsInReply(t *testing.T) {
	f := newFixture(t, time.Minute, actionJSON("home.lights_on"))

	// The audit backend dies before the message arrives. The action must
	// still run and the reply must carry the degradation warning.
	require.NoError(t, f.store.Close())

	reply := f.assistant.HandleMessage(context.Background(), "alice", "turn on the lights")
	assert.Equal(t, 1, f.module.calls["lights_on"])
	assert.Contains(t, reply.Text, "did lights_on")
	assert.Contains(t, reply.Text, "Audit logging is degraded")
}
