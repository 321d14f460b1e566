package migration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/sirupsen/logrus"
)

type sheetClaimer interface {
	// ClaimNext hands one claimable sheet to the caller under leaseToken, or returns nil.
	// Claimable sheets are PENDING ones and those re-queued by recovery.
	ClaimNext(ctx context.Context, leaseToken string, now time.Time) (*domain.Sheet, error)
}

type sheetRunner interface {
	Run(ctx context.Context, sheet domain.Sheet) error
}

type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	NewLease     func() string
	Clock        func() time.Time
}

// Worker is the bounded pool that claims sheets from storage. Sheets re-queued by
// recovery are claimed the same way, so a busy pool only delays them.
type Worker struct {
	claimer sheetClaimer
	runner  sheetRunner
	cfg     WorkerConfig
	log     logrus.FieldLogger
	wake    chan struct{}

	once sync.Once
	wg   sync.WaitGroup
}

func NewWorker(claimer sheetClaimer, runner sheetRunner, log logrus.FieldLogger, cfg WorkerConfig) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.NewLease == nil {
		cfg.NewLease = uuid.NewString
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}

	return &Worker{
		claimer: claimer,
		runner:  runner,
		cfg:     cfg,
		log:     log,
		wake:    make(chan struct{}, 1),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.once.Do(func() {
		for i := 0; i < w.cfg.Workers; i++ {
			w.wg.Add(1)
			go func(id int) {
				defer w.wg.Done()
				w.workerLoop(ctx, w.log.WithField("worker", id))
			}(i)
		}
	})
}

// Wait blocks until every worker has returned after its context was cancelled.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Wake cuts the poll wait of one idle worker short. It never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) workerLoop(ctx context.Context, log logrus.FieldLogger) {
	for {
		if ctx.Err() != nil {
			return
		}

		sheet, err := w.claimer.ClaimNext(ctx, w.cfg.NewLease(), w.cfg.Clock())
		if err != nil {
			log.WithError(err).Error("claim next sheet failed")
			if !w.idle(ctx) {
				return
			}
			continue
		}

		if sheet == nil {
			if !w.idle(ctx) {
				return
			}
			continue
		}

		w.process(ctx, *sheet, log)
	}
}

// idle waits one poll interval or until woken. It returns false once ctx is done.
func (w *Worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-w.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (w *Worker) process(ctx context.Context, sheet domain.Sheet, log logrus.FieldLogger) {
	log = log.WithFields(logrus.Fields{"job_id": sheet.JobID, "sheet_id": sheet.ID})
	log.WithFields(logrus.Fields{
		"status":   sheet.Status,
		"attempts": sheet.RecoveryAttempts,
	}).Info("processing sheet")
	if err := w.runner.Run(ctx, sheet); err != nil {
		log.WithError(err).Error("process sheet failed")
	}
}
