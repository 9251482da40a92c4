package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Kind classifies an interpretation result.
type Kind string

const (
	// KindAction means a validated ActionRequest was produced.
	KindAction Kind = "action"
	// KindClarify means no capability could be confidently resolved;
	// the response carries a clarification question or plain reply.
	KindClarify Kind = "clarify"
	// KindReject means the model output was unusable or invalid.
	KindReject Kind = "reject"
)

// Result is the outcome of interpreting one utterance.
type Result struct {
	Kind     Kind
	Request  *capability.ActionRequest
	Thought  string
	Response string
	Reason   string // populated for KindReject
}

// Input carries one utterance from a single requester. History is a
// read-only disambiguation aid; only Current is eligible for action.
type Input struct {
	Requester  string
	Current    string
	History    []Message
	ReceivedAt time.Time
}

// Interpreter converts utterances into validated action requests.
// It holds no conversation state; callers supply the context window.
type Interpreter struct {
	registry   *capability.Registry
	provider   Provider
	model      string
	timeout    time.Duration
	maxHistory int
	logger     zerolog.Logger
}

// Config holds interpreter configuration.
type Config struct {
	Registry   *capability.Registry
	Provider   Provider
	Model      string
	Timeout    time.Duration
	MaxHistory int
	Logger     zerolog.Logger
}

// New creates an interpreter.
func New(cfg Config) (*Interpreter, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 5
	}
	return &Interpreter{
		registry:   cfg.Registry,
		provider:   cfg.Provider,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxHistory: cfg.MaxHistory,
		logger:     cfg.Logger.With().Str("component", "interpreter").Logger(),
	}, nil
}

// candidate is the raw structured output expected from the model.
type candidate struct {
	Thought  string           `json:"thought"`
	Action   *candidateAction `json:"action"`
	Response string           `json:"response"`
}

type candidateAction struct {
	Capability string                 `json:"capability"`
	Params     map[string]interface{} `json:"params"`
}

// Interpret turns one utterance into an action, a clarification, or a
// rejection. The provider call runs under a bounded timeout; a hang or
// transport error falls back to keyword interpretation rather than an
// error to the caller.
func (i *Interpreter) Interpret(ctx context.Context, in Input) Result {
	if strings.TrimSpace(in.Current) == "" {
		return Result{Kind: KindReject, Reason: "empty utterance"}
	}

	history := in.History
	if len(history) > i.maxHistory {
		history = history[len(history)-i.maxHistory:]
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	raw, err := i.provider.Complete(callCtx, CompletionRequest{
		SystemPrompt: BuildSystemPrompt(i.registry.List(), history),
		Messages:     []Message{{Role: "user", Content: in.Current}},
		Model:        i.model,
	})
	if err != nil {
		i.logger.Warn().Err(err).Str("provider", i.provider.Name()).
			Msg("Provider call failed, using keyword fallback")
		return i.fallback(in)
	}

	cand, err := parseCandidate(raw)
	if err != nil {
		i.logger.Warn().Err(err).Msg("Unparseable model output")
		return Result{Kind: KindReject, Reason: fmt.Sprintf("unusable model output: %v", err)}
	}

	return i.validate(in, cand)
}

// validate turns a raw candidate into a Result, enforcing the id shape,
// registry presence and parameter schema before anything goes downstream.
func (i *Interpreter) validate(in Input, cand *candidate) Result {
	if cand.Action == nil {
		response := cand.Response
		if response == "" {
			response = "I'm not sure what you'd like me to do. Could you be more specific?"
		}
		return Result{Kind: KindClarify, Thought: cand.Thought, Response: response}
	}

	if _, _, err := capability.SplitID(cand.Action.Capability); err != nil {
		return Result{
			Kind:    KindReject,
			Thought: cand.Thought,
			Reason:  err.Error(),
		}
	}

	_, cap, err := i.registry.Resolve(cand.Action.Capability)
	if err != nil {
		return Result{
			Kind:    KindReject,
			Thought: cand.Thought,
			Reason:  fmt.Sprintf("model chose unknown capability %q", cand.Action.Capability),
		}
	}

	params := cand.Action.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := cap.ValidateParams(params); err != nil {
		return Result{
			Kind:    KindReject,
			Thought: cand.Thought,
			Reason:  err.Error(),
		}
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return Result{
		Kind:     KindAction,
		Thought:  cand.Thought,
		Response: cand.Response,
		Request: &capability.ActionRequest{
			Capability: cap.ID,
			Params:     params,
			Requester:  in.Requester,
			Utterance:  in.Current,
			CreatedAt:  receivedAt,
		},
	}
}

// parseCandidate decodes model output, recovering a JSON object embedded
// in surrounding prose when the model did not return bare JSON.
func parseCandidate(raw string) (*candidate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty model output")
	}

	var cand candidate
	if err := json.Unmarshal([]byte(raw), &cand); err == nil {
		return &cand, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cand); err != nil {
		return nil, fmt.Errorf("malformed JSON in model output: %w", err)
	}
	return &cand, nil
}

// fallback performs keyword interpretation when the provider is
// unreachable. Only trivially safe intents are resolved; everything
// else becomes a clarification.
func (i *Interpreter) fallback(in Input) Result {
	lower := strings.ToLower(in.Current)

	match := func(id string, params map[string]interface{}, thought, response string) Result {
		_, cap, err := i.registry.Resolve(id)
		if err != nil {
			return Result{Kind: KindClarify, Response: "The assistant backend is unreachable and I could not map your request to a known action."}
		}
		receivedAt := in.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		return Result{
			Kind:     KindAction,
			Thought:  thought,
			Response: response,
			Request: &capability.ActionRequest{
				Capability: cap.ID,
				Params:     params,
				Requester:  in.Requester,
				Utterance:  in.Current,
				CreatedAt:  receivedAt,
			},
		}
	}

	switch {
	case containsAny(lower, "screenshot", "what's on the screen", "show me the screen"):
		return match("system.screenshot", map[string]interface{}{},
			"User wants to see the screen", "Taking a screenshot...")
	case containsAny(lower, "status", "how are you", "what's up"):
		return match("system.status", map[string]interface{}{},
			"User asking for status", "Checking system status...")
	case containsAny(lower, "note", "remember"):
		return match("system.add_note", map[string]interface{}{"content": in.Current},
			"User wants to save a note", "Saving note...")
	case containsAny(lower, "open", "launch", "start"):
		for _, app := range []string{"chrome", "firefox", "cursor", "code", "terminal"} {
			if strings.Contains(lower, app) {
				return match("desktop.open_app", map[string]interface{}{"app": app},
					fmt.Sprintf("User wants to open %s", app), fmt.Sprintf("Opening %s...", app))
			}
		}
	}

	return Result{
		Kind:     KindClarify,
		Response: fmt.Sprintf("I received your message %q but the assistant backend is unreachable and I could not map it to a known action.", in.Current),
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
