// Package scheduler rolls recurring expenses forward in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

// Roller is the part of the expense service the worker drives.
// *ledger.ExpenseService implements it.
type Roller interface {
	DueExpenses(ctx context.Context, now time.Time, limit int) ([]*models.Expense, error)
	RolloverPeriod(ctx context.Context, expenseID string, dueDate time.Time) (*models.ExpenseHistory, error)
}

// SweepObserver records sweep timings. *metrics.Metrics implements it.
type SweepObserver interface {
	ObserveSweep(elapsed time.Duration, expenses int)
}

// Result summarizes one sweep.
type Result struct {
	Expenses int // due expenses picked up
	Rolled   int // periods closed
	Failed   int // expenses that stopped on an error
}

// RolloverWorker closes elapsed periods of recurring expenses. Each elapsed
// period is rolled separately, so an expense several periods behind gets one
// closed history record per period.
type RolloverWorker struct {
	roller   Roller
	cfg      Config
	log      *slog.Logger
	observer SweepObserver
	now      func() time.Time
}

// NewRolloverWorker creates a worker. observer may be nil.
func NewRolloverWorker(roller Roller, cfg Config, logger *slog.Logger, observer SweepObserver) *RolloverWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RolloverWorker{
		roller:   roller,
		cfg:      cfg.withDefaults(),
		log:      logger.With("component", "rollover_worker"),
		observer: observer,
		now:      time.Now,
	}
}

// RunOnce rolls every period that ended at or before now, for up to BatchSize
// expenses. Expenses still due afterwards are picked up by the next sweep.
// Failures of single expenses are joined into the returned error; they do not
// stop the sweep.
func (w *RolloverWorker) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	due, err := w.roller.DueExpenses(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list due expenses: %w", err)
	}

	var (
		mu   sync.Mutex
		res  = Result{Expenses: len(due)}
		errs error
		g    errgroup.Group
	)
	g.SetLimit(w.cfg.Concurrency)

	for _, expense := range due {
		g.Go(func() error {
			rolled, err := w.catchUp(ctx, expense, now)

			mu.Lock()
			defer mu.Unlock()
			res.Rolled += rolled
			if err != nil {
				res.Failed++
				errs = errors.Join(errs, fmt.Errorf("expense %s: %w", expense.ID, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if w.observer != nil {
		w.observer.ObserveSweep(time.Since(start), len(due))
	}
	if res.Expenses > 0 {
		w.log.Info("rollover sweep finished",
			"expenses", res.Expenses,
			"rolled", res.Rolled,
			"failed", res.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return res, errs
}

// catchUp rolls the periods of one expense in order until its due date is
// after now or MaxCatchUp periods were rolled.
func (w *RolloverWorker) catchUp(ctx context.Context, expense *models.Expense, now time.Time) (int, error) {
	if expense.DueDate == nil || !expense.IsRecurring() {
		return 0, nil
	}

	dueDate := *expense.DueDate
	rolled := 0
	for rolled < w.cfg.MaxCatchUp && !dueDate.After(now) {
		if err := ctx.Err(); err != nil {
			return rolled, err
		}
		closed, err := w.roller.RolloverPeriod(ctx, expense.ID, dueDate)
		if err != nil {
			if ledger.IsRetryable(err) {
				w.log.Warn("rollover deferred", "expense_id", expense.ID, "due_date", dueDate, "error", err)
			}
			return rolled, err
		}
		if closed == nil {
			// Rolled by someone else; their sweep owns the rest.
			return rolled, nil
		}
		rolled++
		dueDate = dueDate.Add(expense.Recurrence.Duration)
	}
	if rolled == w.cfg.MaxCatchUp && !dueDate.After(now) {
		w.log.Warn("rollover catch-up limit reached", "expense_id", expense.ID, "next_due_date", dueDate)
	}
	return rolled, nil
}

// Run sweeps every Interval until ctx is done.
func (w *RolloverWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("rollover worker started", "interval", w.cfg.Interval, "concurrency", w.cfg.Concurrency)
	for {
		if _, err := w.RunOnce(ctx, w.now()); err != nil {
			w.log.Warn("rollover sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.log.Info("rollover worker stopped")
			return
		case <-ticker.C:
		}
	}
}
