package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status values for reminders. Pending is the only non-terminal state.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrNotFound is returned when a reminder id does not exist in the store.
var ErrNotFound = errors.New("reminder not found")

// Delivery-channel outcomes. Channel implementations return these (wrapped is
// fine) so the delivery service can classify failures without knowing the
// channel's transport.
var (
	// ErrUserNotFound means the target user does not exist; permanent.
	ErrUserNotFound = errors.New("user not found")
	// ErrDMsDisabled means the user exists but refuses direct messages; transient.
	ErrDMsDisabled = errors.New("user has DMs disabled")
)

// Reminder is a scheduled private notification for a single user.
type Reminder struct {
	ID               uuid.UUID  `json:"id"`
	GuildID          string     `json:"guild_id"`
	ChannelID        string     `json:"channel_id"`
	UserID           string     `json:"user_id"`
	Message          string     `json:"message"`
	TriggerAt        time.Time  `json:"trigger_at"`
	CreatedAt        time.Time  `json:"created_at"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	Status           string     `json:"status"`
	DeliveryAttempts int        `json:"delivery_attempts"`
	LastError        string     `json:"last_error,omitempty"`
}

// Recipient is an opaque handle to a resolved delivery target.
// For Discord this carries the user's DM channel id.
type Recipient struct {
	UserID    string
	ChannelID string
}

// Content is the rendered body of a direct-message delivery.
type Content struct {
	Text        string
	ScheduledAt time.Time
	CreatedAt   time.Time
}

// Channel sends direct messages to users. ResolveUser returns ErrUserNotFound
// when the target does not exist; SendDirectMessage returns ErrDMsDisabled when
// the recipient refuses DMs.
type Channel interface {
	ResolveUser(ctx context.Context, userID string) (*Recipient, error)
	SendDirectMessage(ctx context.Context, r *Recipient, c Content) error
}

// DeliveryResult describes the outcome of a single delivery attempt.
type DeliveryResult struct {
	Success bool
	// Attempt is the attempt number this call reached (0 if the reminder
	// vanished before any attempt could be made).
	Attempt int
	// Permanent reports that no further attempts will be made.
	Permanent bool
	Error     string
}
