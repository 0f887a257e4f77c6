package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirbrooks/taskbot/internal/domain"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultBatchSize = 100
)

var (
	ErrAlreadyRunning  = errors.New("dispatcher already running")
	ErrSweepInProgress = errors.New("sweep already in progress")
	ErrNotifierNil     = errors.New("notifier is nil")
)

type DueStore interface {
	// FindDueUnsent returns unsent reminders scheduled at or before now,
	// joined with their task and the owner's address. limit <= 0 means all.
	FindDueUnsent(ctx context.Context, now time.Time, limit int) ([]domain.DueReminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	ID        string
	Found     int
	Delivered int
	Failed    int
	// Unmarked counts deliveries whose sent flag could not be stored; they
	// will be delivered again.
	Unmarked int
}

// Dispatcher periodically delivers due reminders. Each reminder is marked
// sent only after a successful delivery; failures stay queued for the next
// sweep.
type Dispatcher struct {
	store    DueStore
	notifier Notifier
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time

	sweeping sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(store DueStore, notifier Notifier, cfg DispatcherConfig) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if notifier == nil {
		return nil, ErrNotifierNil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize < 0 {
		cfg.BatchSize = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		logger:   cfg.Logger.With("component", "dispatcher"),
		now:      cfg.Now,
	}, nil
}

// Start sweeps once right away and then on every interval until Stop is
// called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
	d.logger.Info("dispatcher started", "interval", d.interval, "batch_size", d.batch)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	report, err := d.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		d.logger.Warn("previous sweep still running, skipping")
	case err != nil && ctx.Err() == nil:
		d.logger.Error("sweep failed", "sweep_id", report.ID, "err", err)
	case report.Found > 0:
		d.logger.Info("sweep finished",
			"sweep_id", report.ID,
			"found", report.Found,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"unmarked", report.Unmarked,
		)
	}
}

// Sweep delivers every due, unsent reminder once. Only one sweep runs at a
// time; a concurrent call returns ErrSweepInProgress.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepReport, error) {
	if !d.sweeping.TryLock() {
		return SweepReport{}, ErrSweepInProgress
	}
	defer d.sweeping.Unlock()

	report := SweepReport{ID: uuid.NewString()}
	due, err := d.store.FindDueUnsent(ctx, d.now(), d.batch)
	if err != nil {
		return report, err
	}
	report.Found = len(due)

	for _, item := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d.deliver(ctx, item, &report)
	}
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, item domain.DueReminder, report *SweepReport) {
	log := d.logger.With("sweep_id", report.ID, "reminder_id", item.Reminder.ID, "task_id", item.Task.ID)

	if _, err := d.notifier.Deliver(ctx, item.Address, Text(item.Task), Keyboard(item.Task.ID)); err != nil {
		report.Failed++
		log.Warn("reminder delivery failed", "err", err)
		return
	}
	report.Delivered++

	if err := d.store.MarkSent(ctx, item.Reminder.ID, d.now()); err != nil {
		report.Unmarked++
		log.Error("reminder delivered but not marked sent", "err", err)
	}
}

// Text is the body of a reminder notification.
func Text(task domain.Task) string {
	return "🔔 Напоминание: " + task.Title
}
