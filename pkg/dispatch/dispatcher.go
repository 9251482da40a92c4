package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/rs/zerolog"
)

// Outcome is the terminal result of one dispatch attempt. Exactly one
// audit record exists for it by the time the caller sees this value.
type Outcome struct {
	Record audit.Record
	Result capability.Result
	Err    error

	// AuditDegraded is set when the audit write itself failed. The
	// action may already have executed; callers must surface this as
	// a warning rather than swallow it.
	AuditDegraded bool
}

// Dispatcher resolves validated action requests against the registry,
// invokes the owning module under a bounded timeout and guarantees the
// attempt is recorded exactly once whatever the outcome.
type Dispatcher struct {
	registry *capability.Registry
	audit    *audit.Store
	timeout  time.Duration
	onRecord func(audit.Record)
	logger   zerolog.Logger
}

// Config holds dispatcher configuration.
type Config struct {
	Registry *capability.Registry
	Audit    *audit.Store
	Timeout  time.Duration
	// OnRecord is invoked after each successfully written audit record,
	// e.g. to stream it to gateway subscribers.
	OnRecord func(audit.Record)
	Logger   zerolog.Logger
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Audit == nil {
		return nil, errors.New("audit store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Dispatcher{
		registry: cfg.Registry,
		audit:    cfg.Audit,
		timeout:  cfg.Timeout,
		onRecord: cfg.OnRecord,
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Dispatch executes one request. Unknown capabilities produce a failure
// record without invoking any module. Module faults, panics and
// timeouts are captured as failure outcomes; they never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, req capability.ActionRequest) Outcome {
	mod, cap, err := d.registry.Resolve(req.Capability)
	if err != nil {
		return d.finish(ctx, req, capability.Result{}, err)
	}

	_, action, _ := capability.SplitID(cap.ID)

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, execErr := d.execute(execCtx, mod, action, req.Params)
	return d.finish(ctx, req, result, execErr)
}

// execute invokes the module, converting a panic or an unanswered
// timeout into an ordinary error. One slow module must not hang the
// pipeline, so the call is given up on when its context expires even
// if the module ignores cancellation.
func (d *Dispatcher) execute(ctx context.Context, mod capability.Module, action string, params map[string]interface{}) (capability.Result, error) {
	type execResult struct {
		result capability.Result
		err    error
	}
	done := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("module panic: %v", r)}
			}
		}()
		result, err := mod.Execute(ctx, action, params)
		done <- execResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		return capability.Result{}, fmt.Errorf("execution timed out after %v", d.timeout)
	}
}

// finish writes the one audit record for this attempt and builds the
// outcome. The record is written before control returns to the caller;
// a failed write is surfaced as degraded mode, never dropped silently.
func (d *Dispatcher) finish(ctx context.Context, req capability.ActionRequest, result capability.Result, execErr error) Outcome {
	rec := audit.Record{
		Requester:  req.Requester,
		Capability: req.Capability,
		Params:     req.Params,
		Outcome:    audit.OutcomeSuccess,
		Result:     result.Message,
	}
	if execErr != nil {
		rec.Outcome = audit.OutcomeFailure
		rec.Error = execErr.Error()
		rec.Result = ""
	}

	out := Outcome{Result: result, Err: execErr}
	out.Record, out.AuditDegraded = d.record(ctx, rec)

	d.logger.Info().
		Str("requester", req.Requester).
		Str("capability", req.Capability).
		Str("outcome", string(rec.Outcome)).
		Err(execErr).
		Msg("Dispatch finished")

	return out
}

// RecordDenied writes the audit record for a request blocked by a
// confirmation denial. No module is invoked.
func (d *Dispatcher) RecordDenied(ctx context.Context, req capability.ActionRequest) Outcome {
	rec := audit.Record{
		Requester:  req.Requester,
		Capability: req.Capability,
		Params:     req.Params,
		Outcome:    audit.OutcomeDenied,
	}
	var out Outcome
	out.Record, out.AuditDegraded = d.record(ctx, rec)
	return out
}

// RecordExpired writes the audit record for a confirmation that lapsed
// unanswered. No module is invoked.
func (d *Dispatcher) RecordExpired(ctx context.Context, req capability.ActionRequest) Outcome {
	rec := audit.Record{
		Requester:  req.Requester,
		Capability: req.Capability,
		Params:     req.Params,
		Outcome:    audit.OutcomeExpired,
	}
	var out Outcome
	out.Record, out.AuditDegraded = d.record(ctx, rec)
	return out
}

func (d *Dispatcher) record(ctx context.Context, rec audit.Record) (audit.Record, bool) {
	// The audit write must survive a caller-cancelled context; use a
	// short independent deadline instead.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	written, err := d.audit.Append(writeCtx, rec)
	if err != nil {
		d.logger.Error().Err(err).
			Str("capability", rec.Capability).
			Str("outcome", string(rec.Outcome)).
			Msg("Audit write failed; continuing in degraded mode")
		return rec, true
	}
	if d.onRecord != nil {
		d.onRecord(written)
	}
	return written, false
}
