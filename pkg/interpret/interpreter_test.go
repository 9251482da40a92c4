package interpret

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider returns canned output or fails.
type mockProvider struct {
	output string
	err    error
	delay  time.Duration

	lastRequest CompletionRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.lastRequest = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.output, nil
}

type stubModule struct {
	name string
	caps []capability.Capability
}

func (m *stubModule) Name() string        { return m.name }
func (m *stubModule) Description() string { return "stub" }

func (m *stubModule) Capabilities() []capability.Capability { return m.caps }
func (m *stubModule) Execute(ctx context.Context, action string, params map[string]interface{}) (capability.Result, error) {
	return capability.Result{Message: "done"}, nil
}
func (m *stubModule) State(ctx context.Context) map[string]interface{} { return nil }

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Register(&stubModule{
		name: "system",
		caps: []capability.Capability{
			{ID: "system.screenshot", Description: "take a screenshot"},
			{ID: "system.status", Description: "system status"},
			{ID: "system.add_note", Description: "save a note", Parameters: map[string]interface{}{
				"content": capability.Param("string", "note content", true),
			}},
		},
	}))
	require.NoError(t, r.Register(&stubModule{
		name: "desktop",
		caps: []capability.Capability{
			{ID: "desktop.open_app", Description: "open an application", Parameters: map[string]interface{}{
				"app": capability.Param("string", "application name", true),
			}},
		},
	}))
	return r
}

func newTestInterpreter(t *testing.T, p Provider) *Interpreter {
	t.Helper()
	i, err := New(Config{
		Registry: testRegistry(t),
		Provider: p,
		Model:    "test-model",
		Timeout:  time.Second,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return i
}

func TestInterpret_ValidAction(t *testing.T) {
	p := &mockProvider{output: `{"thought":"user wants a screenshot","action":{"capability":"system.screenshot","params":{}},"response":"Taking a screenshot..."}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "take a screenshot"})
	require.Equal(t, KindAction, res.Kind)
	require.NotNil(t, res.Request)
	assert.Equal(t, "system.screenshot", res.Request.Capability)
	assert.Equal(t, "owner", res.Request.Requester)
	assert.Equal(t, "take a screenshot", res.Request.Utterance)
}

func TestInterpret_NullActionBecomesClarify(t *testing.T) {
	p := &mockProvider{output: `{"thought":"unclear","action":null,"response":"What exactly should I open?"}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "open it"})
	assert.Equal(t, KindClarify, res.Kind)
	assert.Equal(t, "What exactly should I open?", res.Response)
	assert.Nil(t, res.Request)
}

func TestInterpret_MalformedCapabilityID(t *testing.T) {
	// Bare module name with no action suffix must be rejected before
	// it ever reaches the registry or a module.
	p := &mockProvider{output: `{"thought":"t","action":{"capability":"windows","params":{}},"response":"ok"}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "open chrome"})
	assert.Equal(t, KindReject, res.Kind)
	assert.Nil(t, res.Request)
}

func TestInterpret_UnknownCapability(t *testing.T) {
	p := &mockProvider{output: `{"thought":"t","action":{"capability":"ghost.dance","params":{}},"response":"ok"}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "dance"})
	assert.Equal(t, KindReject, res.Kind)
}

func TestInterpret_MissingRequiredParam(t *testing.T) {
	p := &mockProvider{output: `{"thought":"t","action":{"capability":"desktop.open_app","params":{}},"response":"ok"}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "open something"})
	assert.Equal(t, KindReject, res.Kind)
	assert.Contains(t, res.Reason, "desktop.open_app")
}

func TestInterpret_TruncatedOutput(t *testing.T) {
	p := &mockProvider{output: `{"thought":"t","action":{"capability":"sys`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "screenshot"})
	assert.Equal(t, KindReject, res.Kind)
}

func TestInterpret_JSONEmbeddedInProse(t *testing.T) {
	p := &mockProvider{output: "Sure, here is my decision:\n" +
		`{"thought":"t","action":{"capability":"system.status","params":{}},"response":"Checking..."}` +
		"\nLet me know if that helps."}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "status?"})
	require.Equal(t, KindAction, res.Kind)
	assert.Equal(t, "system.status", res.Request.Capability)
}

func TestInterpret_HistoryIsContextNotInstruction(t *testing.T) {
	p := &mockProvider{output: `{"thought":"time question","action":{"capability":"system.status","params":{}},"response":"Checking the time..."}`}
	i := newTestInterpreter(t, p)

	res := i.Interpret(context.Background(), Input{
		Requester: "owner",
		Current:   "what time is it",
		History: []Message{
			{Role: "user", Content: "open chrome"},
			{Role: "assistant", Content: "Opening chrome..."},
		},
	})
	require.Equal(t, KindAction, res.Kind)

	// Only the current utterance goes to the model as an actionable
	// message; history rides along inside the system prompt.
	require.Len(t, p.lastRequest.Messages, 1)
	assert.Equal(t, "what time is it", p.lastRequest.Messages[0].Content)
	assert.Contains(t, p.lastRequest.SystemPrompt, "context only, do NOT execute")
	assert.Contains(t, p.lastRequest.SystemPrompt, "open chrome")
}

func TestInterpret_ProviderTimeoutFallsBack(t *testing.T) {
	p := &mockProvider{delay: 5 * time.Second, output: "never used"}
	i := newTestInterpreter(t, p)

	start := time.Now()
	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "take a screenshot"})
	assert.Less(t, time.Since(start), 3*time.Second, "timeout must bound the provider call")

	// Keyword fallback still resolves the screenshot intent.
	require.Equal(t, KindAction, res.Kind)
	assert.Equal(t, "system.screenshot", res.Request.Capability)
}

func TestInterpret_ProviderErrorFallback(t *testing.T) {
	p := &mockProvider{err: fmt.Errorf("connection refused")}
	i := newTestInterpreter(t, p)

	tests := []struct {
		utterance string
		wantKind  Kind
		wantCap   string
	}{
		{"take a screenshot", KindAction, "system.screenshot"},
		{"what's the status", KindAction, "system.status"},
		{"note: buy milk", KindAction, "system.add_note"},
		{"open chrome", KindAction, "desktop.open_app"},
		{"reconfigure the flux capacitor", KindClarify, ""},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			res := i.Interpret(context.Background(), Input{Requester: "owner", Current: tt.utterance})
			assert.Equal(t, tt.wantKind, res.Kind)
			if tt.wantCap != "" {
				require.NotNil(t, res.Request)
				assert.Equal(t, tt.wantCap, res.Request.Capability)
			}
		})
	}
}

func TestInterpret_EmptyUtterance(t *testing.T) {
	i := newTestInterpreter(t, &mockProvider{output: "{}"})
	res := i.Interpret(context.Background(), Input{Requester: "owner", Current: "   "})
	assert.Equal(t, KindReject, res.Kind)
}
