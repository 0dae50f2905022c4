// Package scheduler drives periodic delivery of due reminders.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpike5/discordbot-sub015/internal/reminder"
)

// Config holds the polling-loop knobs.
type Config struct {
	// InitialDelay is waited once at startup before the first poll, so
	// dependent subsystems (the DM channel in particular) can become ready.
	InitialDelay time.Duration
	// CheckInterval is the time between poll ticks.
	CheckInterval time.Duration
	// MaxConcurrent caps the number of deliveries in flight at once.
	MaxConcurrent int
	// ExecutionTimeout bounds a single delivery attempt.
	ExecutionTimeout time.Duration
}

// DueSource answers the due-reminder query.
type DueSource interface {
	GetDue(ctx context.Context, now time.Time) ([]reminder.Reminder, error)
}

// Deliverer performs one delivery attempt for one reminder id.
type Deliverer interface {
	AttemptDelivery(ctx context.Context, id uuid.UUID) reminder.DeliveryResult
}

// Scheduler polls the store for due reminders and fans them out to the
// Deliverer under a concurrency cap and a per-delivery timeout.
//
// A single Scheduler per store is assumed; nothing prevents two processes
// polling the same database from double-delivering.
type Scheduler struct {
	due       DueSource
	deliverer Deliverer
	cfg       Config
	logger    *zap.Logger

	// Concurrency semaphore: at most cfg.MaxConcurrent deliveries in flight.
	sem chan struct{}
}

// New creates a Scheduler. It does not start polling; call Run.
func New(due DueSource, deliverer Deliverer, cfg Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		due:       due,
		deliverer: deliverer,
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run blocks and polls on the configured interval until ctx is cancelled.
// A slow batch delays the next tick; ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.CheckInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.cfg.CheckInterval)
	}
	if s.cfg.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler concurrency cap must be positive, got %d", s.cfg.MaxConcurrent)
	}

	s.logger.Info("started",
		zap.Duration("initial_delay", s.cfg.InitialDelay),
		zap.Duration("interval", s.cfg.CheckInterval),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent))

	if s.cfg.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil
		case <-time.After(s.cfg.InitialDelay):
		}
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one poll-and-dispatch cycle and waits for every dispatched
// delivery to finish before returning.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.due.GetDue(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("due query failed", zap.Error(err))
		}
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("dispatching due reminders", zap.Int("count", len(due)))

	var wg sync.WaitGroup
	for _, rem := range due {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case s.sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			defer func() { <-s.sem }()
			s.deliver(ctx, id)
		}(rem.ID)
	}
	wg.Wait()
}

func (s *Scheduler) deliver(ctx context.Context, id uuid.UUID) {
	// A panicking delivery must not take down the poll loop or its siblings.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delivery panicked",
				zap.String("reminder_id", id.String()),
				zap.Any("panic", r))
		}
	}()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()

	res := s.deliverer.AttemptDelivery(dctx, id)

	switch {
	case res.Success:
	case dctx.Err() == context.DeadlineExceeded:
		// Not a classified failure; the reminder stays pending and is
		// picked up again on the next tick.
		s.logger.Warn("delivery timed out",
			zap.String("reminder_id", id.String()),
			zap.Duration("timeout", s.cfg.ExecutionTimeout))
	case ctx.Err() != nil:
		s.logger.Info("delivery cancelled by shutdown", zap.String("reminder_id", id.String()))
	default:
		s.logger.Debug("delivery attempt unsuccessful",
			zap.String("reminder_id", id.String()),
			zap.Int("attempt", res.Attempt),
			zap.Bool("permanent", res.Permanent),
			zap.String("error", res.Error))
	}
}
