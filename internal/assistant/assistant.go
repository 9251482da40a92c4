// Package assistant wires interpretation, confirmation and dispatch
// into the message pipeline both transports share.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ilja/jarvis/internal/metrics"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/ilja/jarvis/pkg/dispatch"
	"github.com/ilja/jarvis/pkg/interpret"
	"github.com/ilja/jarvis/pkg/policy"
	"github.com/rs/zerolog"
)

// Reply is what a transport sends back to the requester.
type Reply struct {
	Text string
	// ScreenshotPath is set when the action produced an image the
	// transport should attach.
	ScreenshotPath string
	// NeedsConfirmation is set when the message parked an action behind
	// the confirmation gate.
	NeedsConfirmation bool
}

// Assistant is the core message pipeline: every inbound message, from
// any transport, flows through HandleMessage.
type Assistant struct {
	registry    *capability.Registry
	interpreter *interpret.Interpreter
	gate        *confirm.Gate
	dispatcher  *dispatch.Dispatcher
	policy      *policy.Policy
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	historyMu  sync.Mutex
	history    map[string][]interpret.Message
	maxHistory int
}

// Config holds assistant configuration.
type Config struct {
	Registry    *capability.Registry
	Interpreter *interpret.Interpreter
	Gate        *confirm.Gate
	Dispatcher  *dispatch.Dispatcher
	Policy      *policy.Policy
	Metrics     *metrics.Metrics
	MaxHistory  int
	Logger      zerolog.Logger
}

// New creates the assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Registry == nil || cfg.Interpreter == nil || cfg.Gate == nil || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("registry, interpreter, gate and dispatcher are required")
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 5
	}
	return &Assistant{
		registry:    cfg.Registry,
		interpreter: cfg.Interpreter,
		gate:        cfg.Gate,
		dispatcher:  cfg.Dispatcher,
		policy:      cfg.Policy,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "assistant").Logger(),
		history:     make(map[string][]interpret.Message),
		maxHistory:  cfg.MaxHistory,
	}, nil
}

// HandleMessage processes one inbound message from a requester. Replies
// to a pending confirmation are resolved first; everything else goes
// through interpretation.
func (a *Assistant) HandleMessage(ctx context.Context, requester, text string) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: "I didn't catch that. What would you like me to do?"}
	}

	if reply, handled := a.resolveConfirmation(ctx, requester, text); handled {
		return reply
	}

	start := time.Now()
	result := a.interpreter.Interpret(ctx, interpret.Input{
		Requester:  requester,
		Current:    text,
		History:    a.historyFor(requester),
		ReceivedAt: start,
	})
	if a.metrics != nil {
		a.metrics.InterpretationsTotal.WithLabelValues(string(result.Kind)).Inc()
		a.metrics.InterpretationLatency.Observe(time.Since(start).Seconds())
	}

	var reply Reply
	switch result.Kind {
	case interpret.KindAction:
		reply = a.handleAction(ctx, *result.Request)
	case interpret.KindClarify:
		reply = Reply{Text: result.Response}
	default:
		a.logger.Warn().
			Str("requester", requester).
			Str("reason", result.Reason).
			Msg("Utterance rejected")
		reply = Reply{Text: fmt.Sprintf("I couldn't act on that: %s", result.Reason)}
	}

	a.remember(requester, text, reply.Text)
	return reply
}

// resolveConfirmation checks the message against the confirmation gate.
// The boolean reports whether the message was consumed as a decision.
func (a *Assistant) resolveConfirmation(ctx context.Context, requester, text string) (Reply, bool) {
	req, decision := a.gate.Resolve(requester, text)
	switch decision {
	case confirm.DecisionConfirmed:
		a.countDecision("confirmed")
		reply := a.dispatchNow(ctx, req)
		a.remember(requester, text, reply.Text)
		return reply, true

	case confirm.DecisionDenied:
		a.countDecision("denied")
		out := a.dispatcher.RecordDenied(ctx, req)
		reply := Reply{Text: fmt.Sprintf("Okay, I won't run %s.", req.Capability)}
		if out.AuditDegraded {
			reply.Text += "\n⚠️ Audit logging is degraded."
		}
		a.remember(requester, text, reply.Text)
		return reply, true

	case confirm.DecisionExpired:
		a.countDecision("expired")
		a.dispatcher.RecordExpired(ctx, req)
		// A bare yes/no was aimed at the lapsed request; anything else
		// still deserves interpretation on its own.
		if confirm.IsAffirmative(text) || confirm.IsNegative(text) {
			reply := Reply{Text: fmt.Sprintf("The confirmation for %s expired, so I didn't run it. Ask again if you still want it.", req.Capability)}
			a.remember(requester, text, reply.Text)
			return reply, true
		}
		return Reply{}, false

	default:
		return Reply{}, false
	}
}

// handleAction routes a validated request: dangerous ones are parked
// behind the gate, the rest dispatch immediately.
func (a *Assistant) handleAction(ctx context.Context, req capability.ActionRequest) Reply {
	_, cap, err := a.registry.Resolve(req.Capability)
	if err != nil {
		// Interpreter validated against the registry already; a module
		// disabled in between lands here.
		out := a.dispatcher.Dispatch(ctx, req)
		return a.formatOutcome(req, out)
	}

	dangerous := cap.Dangerous
	if a.policy != nil {
		dangerous = a.policy.Dangerous(cap.ID, cap.Dangerous)
	}

	if dangerous {
		if superseded := a.gate.Hold(req); superseded != nil {
			a.logger.Info().
				Str("requester", req.Requester).
				Str("superseded", superseded.Capability).
				Str("capability", req.Capability).
				Msg("Pending confirmation superseded")
		}
		return Reply{
			Text:              fmt.Sprintf("⚠️ %s is a protected action. Reply \"yes\" to run it or \"no\" to cancel.", req.Capability),
			NeedsConfirmation: true,
		}
	}

	return a.dispatchNow(ctx, req)
}

func (a *Assistant) dispatchNow(ctx context.Context, req capability.ActionRequest) Reply {
	start := time.Now()
	out := a.dispatcher.Dispatch(ctx, req)
	if a.metrics != nil {
		a.metrics.DispatchesTotal.WithLabelValues(req.Capability, string(out.Record.Outcome)).Inc()
		a.metrics.DispatchDuration.WithLabelValues(req.Capability).Observe(time.Since(start).Seconds())
	}
	return a.formatOutcome(req, out)
}

func (a *Assistant) formatOutcome(req capability.ActionRequest, out dispatch.Outcome) Reply {
	var reply Reply
	if out.Err != nil {
		reply.Text = fmt.Sprintf("%s failed: %v", req.Capability, out.Err)
	} else {
		reply.Text = out.Result.Message
		if reply.Text == "" {
			reply.Text = fmt.Sprintf("Done: %s", req.Capability)
		}
		reply.ScreenshotPath = out.Result.ScreenshotPath
	}
	if out.AuditDegraded {
		reply.Text += "\n⚠️ Audit logging is degraded."
	}
	return reply
}

// HandleExpiry records a swept confirmation and returns the text a
// transport should push to the requester. Wired into the gate's
// OnExpire hook by the daemon.
func (a *Assistant) HandleExpiry(req capability.ActionRequest) string {
	a.countDecision("expired")
	a.dispatcher.RecordExpired(context.Background(), req)
	return fmt.Sprintf("The confirmation for %s expired, so I didn't run it.", req.Capability)
}

// historyFor returns a copy of the requester's recent conversation.
func (a *Assistant) historyFor(requester string) []interpret.Message {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	return append([]interpret.Message(nil), a.history[requester]...)
}

// remember appends the exchange to the requester's history window.
func (a *Assistant) remember(requester, userText, replyText string) {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()

	h := append(a.history[requester],
		interpret.Message{Role: "user", Content: userText},
		interpret.Message{Role: "assistant", Content: replyText},
	)
	// Two entries per exchange.
	if max := a.maxHistory * 2; len(h) > max {
		h = h[len(h)-max:]
	}
	a.history[requester] = h
}

// countDecision counts confirmation outcomes. The pending gauge is fed
// by the gate itself, which sees every hold and release regardless of
// which transport parked the request.
func (a *Assistant) countDecision(decision string) {
	if a.metrics != nil {
		a.metrics.ConfirmationsTotal.WithLabelValues(decision).Inc()
	}
}
