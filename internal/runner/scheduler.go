package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
)

// Scheduler triggers a full run on a fixed interval. A tick that lands while
// a run is active is skipped, not queued.
type Scheduler struct {
	runner *Runner
	cfg    config.SchedulerConfig
}

// NewScheduler creates the periodic run driver.
func NewScheduler(runner *Runner, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
	}
}

// Run starts the periodic trigger loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 105 * time.Minute
	}

	log := zap.L().With(zap.String("component", "runner.scheduler"))
	log.Info("starting run scheduler", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, log *zap.Logger) {
	result, err := s.runner.RunFull(ctx, "schedule")
	if eris.Is(err, ErrRunInProgress) {
		log.Info("scheduled run skipped, another run is active")
		return
	}
	if err != nil {
		log.Error("scheduled run failed", zap.Error(err))
		return
	}
	log.Info("scheduled run complete",
		zap.String("session_id", result.SessionID),
		zap.Int("candidates", result.Candidates),
		zap.Int("failures", len(result.Failures)),
	)
}
