package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxMessageLen = 500

// Creation and cancellation outcomes.
var (
	// ErrValidation wraps all creation-input problems.
	ErrValidation = errors.New("invalid reminder")
	// ErrQuotaExceeded means the user already holds the maximum number of
	// pending reminders.
	ErrQuotaExceeded = errors.New("too many pending reminders")
	// ErrNotPending means the reminder exists but is already in a terminal state.
	ErrNotPending = errors.New("reminder is not pending")
)

// ServiceConfig holds the limits the delivery service enforces.
type ServiceConfig struct {
	MaxDeliveryAttempts int
	MaxRemindersPerUser int
	MaxAdvanceDays      int
	MinAdvanceMinutes   int
}

// Service owns the reminder lifecycle: validated creation, cancellation, and
// single delivery attempts against the store and the delivery channel.
type Service struct {
	store   *Store
	channel Channel
	cfg     ServiceConfig
	logger  *zap.Logger
}

// NewService creates a Service over the given store and delivery channel.
func NewService(store *Store, channel Channel, cfg ServiceConfig, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		channel: channel,
		cfg:     cfg,
		logger:  logger.Named("delivery"),
	}
}

// CreateRequest carries the user-supplied fields for a new reminder.
type CreateRequest struct {
	GuildID   string
	ChannelID string
	UserID    string
	Message   string
	TriggerAt time.Time
}

// Create validates the request and persists a new pending reminder.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Reminder, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(msg) > maxMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLen)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	now := time.Now().UTC()
	trigger := req.TriggerAt.UTC()
	earliest := now.Add(time.Duration(s.cfg.MinAdvanceMinutes) * time.Minute)
	latest := now.AddDate(0, 0, s.cfg.MaxAdvanceDays)
	if trigger.Before(earliest) {
		return nil, fmt.Errorf("%w: trigger time must be at least %d minute(s) from now",
			ErrValidation, s.cfg.MinAdvanceMinutes)
	}
	if trigger.After(latest) {
		return nil, fmt.Errorf("%w: trigger time must be within %d day(s) from now",
			ErrValidation, s.cfg.MaxAdvanceDays)
	}

	count, err := s.store.CountPending(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if count >= s.cfg.MaxRemindersPerUser {
		return nil, ErrQuotaExceeded
	}

	r := &Reminder{
		ID:        uuid.New(),
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		Message:   msg,
		TriggerAt: trigger,
		CreatedAt: now,
		Status:    StatusPending,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("reminder created",
		zap.String("reminder_id", r.ID.String()),
		zap.String("user_id", r.UserID),
		zap.Time("trigger_at", r.TriggerAt))
	return r, nil
}

// Cancel transitions a pending reminder to cancelled. It returns ErrNotFound
// for unknown ids and ErrNotPending when the reminder already reached a
// terminal state.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	ok, err := s.store.CancelPending(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}

	s.logger.Info("reminder cancelled", zap.String("reminder_id", id.String()))
	return nil
}

// Get returns a reminder by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.store.GetByID(ctx, id)
}

// ListByUser returns all reminders belonging to a user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Reminder, error) {
	return s.store.ListByUser(ctx, userID)
}

// AttemptDelivery performs exactly one delivery attempt for the reminder and
// persists the outcome. A reminder that is no longer pending is an idempotent
// no-op. A ctx expiry mid-attempt leaves the stored state untouched so the
// next poll retries with the same attempt count.
func (s *Service) AttemptDelivery(ctx context.Context, id uuid.UUID) DeliveryResult {
	rem, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Vanished between query and dispatch. Nothing to retry.
			s.logger.Warn("reminder vanished before delivery", zap.String("reminder_id", id.String()))
			return DeliveryResult{Permanent: true, Error: "reminder not found"}
		}
		return DeliveryResult{Error: err.Error()}
	}

	if rem.Status != StatusPending {
		return DeliveryResult{Success: true, Attempt: rem.DeliveryAttempts}
	}

	// Counts attempts, not successes.
	rem.DeliveryAttempts++

	recipient, err := s.channel.ResolveUser(ctx, rem.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return s.abandoned(rem, ctx.Err())
		}
		if errors.Is(err, ErrUserNotFound) {
			return s.failPermanent(ctx, rem, "User not found")
		}
		return s.failTransient(ctx, rem, err.Error())
	}
	if recipient == nil {
		return s.failPermanent(ctx, rem, "User not found")
	}

	err = s.channel.SendDirectMessage(ctx, recipient, Content{
		Text:        rem.Message,
		ScheduledAt: rem.TriggerAt,
		CreatedAt:   rem.CreatedAt,
	})
	if err != nil {
		if ctx.Err() != nil {
			return s.abandoned(rem, ctx.Err())
		}
		if errors.Is(err, ErrDMsDisabled) {
			return s.failTransient(ctx, rem, "User has DMs disabled")
		}
		return s.failTransient(ctx, rem, err.Error())
	}

	now := time.Now().UTC()
	rem.Status = StatusDelivered
	rem.DeliveredAt = &now
	rem.LastError = ""
	if err := s.store.Save(ctx, rem); err != nil {
		return DeliveryResult{Attempt: rem.DeliveryAttempts, Error: err.Error()}
	}

	s.logger.Info("reminder delivered",
		zap.String("reminder_id", rem.ID.String()),
		zap.String("user_id", rem.UserID),
		zap.Int("attempt", rem.DeliveryAttempts))
	return DeliveryResult{Success: true, Attempt: rem.DeliveryAttempts}
}

// abandoned reports a delivery cut short by timeout or shutdown. The attempt
// increment is deliberately not persisted; the reminder stays pending with its
// previous counter and is re-queried on a later tick.
func (s *Service) abandoned(rem *Reminder, cause error) DeliveryResult {
	s.logger.Info("delivery abandoned",
		zap.String("reminder_id", rem.ID.String()),
		zap.Error(cause))
	return DeliveryResult{Attempt: rem.DeliveryAttempts, Error: cause.Error()}
}

func (s *Service) failPermanent(ctx context.Context, rem *Reminder, reason string) DeliveryResult {
	rem.Status = StatusFailed
	rem.LastError = reason
	if err := s.store.Save(ctx, rem); err != nil {
		return DeliveryResult{Attempt: rem.DeliveryAttempts, Error: err.Error()}
	}

	s.logger.Warn("reminder failed permanently",
		zap.String("reminder_id", rem.ID.String()),
		zap.String("user_id", rem.UserID),
		zap.Int("attempt", rem.DeliveryAttempts),
		zap.String("reason", reason))
	return DeliveryResult{Attempt: rem.DeliveryAttempts, Permanent: true, Error: reason}
}

func (s *Service) failTransient(ctx context.Context, rem *Reminder, reason string) DeliveryResult {
	rem.LastError = reason
	exhausted := rem.DeliveryAttempts >= s.cfg.MaxDeliveryAttempts
	if exhausted {
		rem.Status = StatusFailed
	}
	if err := s.store.Save(ctx, rem); err != nil {
		return DeliveryResult{Attempt: rem.DeliveryAttempts, Error: err.Error()}
	}

	if exhausted {
		s.logger.Warn("reminder failed, attempts exhausted",
			zap.String("reminder_id", rem.ID.String()),
			zap.Int("attempt", rem.DeliveryAttempts),
			zap.String("reason", reason))
	} else {
		s.logger.Info("delivery failed, will retry on a later poll",
			zap.String("reminder_id", rem.ID.String()),
			zap.Int("attempt", rem.DeliveryAttempts),
			zap.String("reason", reason))
	}
	return DeliveryResult{Attempt: rem.DeliveryAttempts, Permanent: exhausted, Error: reason}
}
