package migration

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type allRecoverer interface {
	RecoverAll(ctx context.Context) ([]RecoveryOutcome, error)
}

// RecoveryScheduler runs the stuck-sheet sweep on a cron schedule. Overlapping sweeps
// are skipped.
type RecoveryScheduler struct {
	recovery allRecoverer
	spec     string
	cron     *cron.Cron
	log      logrus.FieldLogger
}

func NewRecoveryScheduler(recovery allRecoverer, spec string, log logrus.FieldLogger) *RecoveryScheduler {
	logger := cron.PrintfLogger(log)
	return &RecoveryScheduler{
		recovery: recovery,
		spec:     spec,
		log:      log,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
	}
}

// Start registers the sweep and runs one immediately so that sheets orphaned by a
// previous process are picked up at boot. An empty spec disables scheduling.
func (s *RecoveryScheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.log.Info("scheduled recovery disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule recovery %q: %w", s.spec, err)
	}
	s.cron.Start()
	go s.Sweep(ctx)
	return nil
}

// Stop halts the schedule and returns a context done when a running sweep finishes.
func (s *RecoveryScheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *RecoveryScheduler) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	outcomes, err := s.recovery.RecoverAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("recovery sweep finished with errors")
	}
	counts := map[RecoveryAction]int{}
	for _, outcome := range outcomes {
		counts[outcome.Action]++
	}
	if len(outcomes) > 0 {
		s.log.WithFields(logrus.Fields{
			"stuck":    len(outcomes),
			"resumed":  counts[RecoveryResumed],
			"restaged": counts[RecoveryRestaged],
			"reset":    counts[RecoveryReset],
			"failed":   counts[RecoveryFailed],
		}).Info("recovery sweep done")
	}
}
