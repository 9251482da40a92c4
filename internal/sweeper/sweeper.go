// Package sweeper runs the periodic housekeeping jobs: expiring stale
// confirmations and pruning old audit records.
package sweeper

import (
	"context"
	"time"

	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper owns the cron schedule.
type Sweeper struct {
	cron          *cron.Cron
	gate          *confirm.Gate
	audit         *audit.Store
	retentionDays int
	logger        zerolog.Logger
}

// Config holds sweeper configuration.
type Config struct {
	Gate  *confirm.Gate
	Audit *audit.Store
	// RetentionDays prunes audit records older than this each night;
	// zero disables pruning.
	RetentionDays int
	Logger        zerolog.Logger
}

// New creates the sweeper with its jobs registered but not started.
func New(cfg Config) (*Sweeper, error) {
	s := &Sweeper{
		cron:          cron.New(cron.WithSeconds()),
		gate:          cfg.Gate,
		audit:         cfg.Audit,
		retentionDays: cfg.RetentionDays,
		logger:        cfg.Logger.With().Str("component", "sweeper").Logger(),
	}

	// Stale confirmations expire within seconds of their deadline, not
	// whenever the owner next writes.
	if s.gate != nil {
		if _, err := s.cron.AddFunc("*/10 * * * * *", s.sweepConfirmations); err != nil {
			return nil, err
		}
	}

	if s.audit != nil && s.retentionDays > 0 {
		if _, err := s.cron.AddFunc("0 0 3 * * *", s.pruneAudit); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Int("retention_days", s.retentionDays).Msg("Sweeper started")
}

// Stop halts the schedule and waits for running jobs.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Sweeper stopped")
}

func (s *Sweeper) sweepConfirmations() {
	if n := s.gate.Sweep(); n > 0 {
		s.logger.Info().Int("expired", n).Msg("Expired pending confirmations")
	}
}

func (s *Sweeper) pruneAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	pruned, err := s.audit.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Audit prune failed")
		return
	}
	if pruned > 0 {
		s.logger.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("Pruned audit records")
	}
}
