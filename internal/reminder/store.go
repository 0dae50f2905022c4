package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed storage for reminders.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath and
// ensures the reminders table exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createTable(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			id                TEXT    PRIMARY KEY,
			guild_id          TEXT    NOT NULL,
			channel_id        TEXT    NOT NULL,
			user_id           TEXT    NOT NULL,
			message           TEXT    NOT NULL,
			trigger_at        TEXT    NOT NULL,
			created_at        TEXT    NOT NULL,
			delivered_at      TEXT,
			status            TEXT    NOT NULL DEFAULT 'pending',
			delivery_attempts INTEGER NOT NULL DEFAULT 0,
			last_error        TEXT    NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, trigger_at)
	`); err != nil {
		return fmt.Errorf("failed to create due index: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id, status)
	`); err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const reminderColumns = `id, guild_id, channel_id, user_id, message, trigger_at,
	created_at, delivered_at, status, delivery_attempts, last_error`

// Create inserts a new reminder.
func (s *Store) Create(ctx context.Context, r *Reminder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID.String(), r.GuildID, r.ChannelID, r.UserID, r.Message,
		r.TriggerAt.UTC().Format(time.RFC3339), r.CreatedAt.UTC().Format(time.RFC3339),
		formatNullableTime(r.DeliveredAt), r.Status, r.DeliveryAttempts, r.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

// GetByID returns a single reminder, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders WHERE id = ?
	`, id.String())

	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return r, nil
}

// GetDue returns all pending reminders whose trigger_at is at or before now,
// oldest first.
func (s *Store) GetDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE status = ? AND trigger_at <= ?
		ORDER BY trigger_at ASC
	`, StatusPending, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to get due reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// Save persists the full current state of a reminder.
func (s *Store) Save(ctx context.Context, r *Reminder) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET guild_id = ?, channel_id = ?, user_id = ?, message = ?, trigger_at = ?,
			created_at = ?, delivered_at = ?, status = ?, delivery_attempts = ?, last_error = ?
		WHERE id = ?
	`, r.GuildID, r.ChannelID, r.UserID, r.Message,
		r.TriggerAt.UTC().Format(time.RFC3339), r.CreatedAt.UTC().Format(time.RFC3339),
		formatNullableTime(r.DeliveredAt), r.Status, r.DeliveryAttempts, r.LastError,
		r.ID.String())
	if err != nil {
		return fmt.Errorf("failed to save reminder: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPending transitions a reminder from pending to cancelled. It reports
// false when the reminder does not exist or is already in a terminal state.
func (s *Store) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ? WHERE id = ? AND status = ?
	`, StatusCancelled, id.String(), StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reminder: %w", err)
	}

	n, _ := result.RowsAffected()
	return n > 0, nil
}

// CountPending returns the number of pending reminders held by a user.
func (s *Store) CountPending(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminders WHERE user_id = ? AND status = ?
	`, userID, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reminders: %w", err)
	}
	return n, nil
}

// ListByUser returns all reminders for a user, soonest trigger first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = ? ORDER BY trigger_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*Reminder, error) {
	var r Reminder
	var id, triggerAt, createdAt string
	var deliveredAt sql.NullString

	if err := row.Scan(&id, &r.GuildID, &r.ChannelID, &r.UserID, &r.Message,
		&triggerAt, &createdAt, &deliveredAt,
		&r.Status, &r.DeliveryAttempts, &r.LastError); err != nil {
		return nil, err
	}

	r.ID, _ = uuid.Parse(id)
	r.TriggerAt, _ = time.Parse(time.RFC3339, triggerAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if deliveredAt.Valid {
		t, _ := time.Parse(time.RFC3339, deliveredAt.String)
		r.DeliveredAt = &t
	}

	return &r, nil
}

// scanReminders reads multiple rows into a slice of Reminder.
func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var reminders []Reminder
	for rows.Next() {
		r, err := scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// scanReminder reads a single row into a Reminder.
func scanReminder(row *sql.Row) (*Reminder, error) {
	return scanOne(row)
}
