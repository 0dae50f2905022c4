package reminder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "reminders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReminder(userID string, triggerAt time.Time) *Reminder {
	return &Reminder{
		ID:        uuid.New(),
		GuildID:   "100200300",
		ChannelID: "400500600",
		UserID:    userID,
		Message:   "drink water",
		TriggerAt: triggerAt.UTC(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    StatusPending,
	}
}

func TestStore_CreateAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testReminder("u1", time.Now().Add(time.Hour).Truncate(time.Second))
	require.NoError(t, store.Create(ctx, r))

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "drink water", got.Message)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.DeliveryAttempts)
	assert.Nil(t, got.DeliveredAt)
	assert.True(t, r.TriggerAt.Equal(got.TriggerAt))
}

func TestStore_GetByID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	overdue := testReminder("u1", now.Add(-2*time.Hour))
	justDue := testReminder("u1", now.Add(-time.Minute))
	future := testReminder("u1", now.Add(time.Hour))
	delivered := testReminder("u2", now.Add(-time.Hour))
	delivered.Status = StatusDelivered
	cancelled := testReminder("u2", now.Add(-time.Hour))
	cancelled.Status = StatusCancelled

	for _, r := range []*Reminder{justDue, future, delivered, cancelled, overdue} {
		require.NoError(t, store.Create(ctx, r))
	}

	due, err := store.GetDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)

	// Oldest due first.
	assert.Equal(t, overdue.ID, due[0].ID)
	assert.Equal(t, justDue.ID, due[1].ID)
}

func TestStore_GetDue_Empty(t *testing.T) {
	store := newTestStore(t)

	due, err := store.GetDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_Save(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testReminder("u1", time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, r))

	now := time.Now().UTC().Truncate(time.Second)
	r.Status = StatusDelivered
	r.DeliveryAttempts = 2
	r.DeliveredAt = &now
	r.LastError = ""
	require.NoError(t, store.Save(ctx, r))

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, 2, got.DeliveryAttempts)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, now.Equal(*got.DeliveredAt))
}

func TestStore_Save_NotFound(t *testing.T) {
	store := newTestStore(t)

	r := testReminder("u1", time.Now())
	assert.ErrorIs(t, store.Save(context.Background(), r), ErrNotFound)
}

func TestStore_CancelPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testReminder("u1", time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, r))

	t.Run("pending is cancelled", func(t *testing.T) {
		ok, err := store.CancelPending(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})

	t.Run("terminal state is left alone", func(t *testing.T) {
		ok, err := store.CancelPending(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown id", func(t *testing.T) {
		ok, err := store.CancelPending(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_CountPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, testReminder("u1", time.Now().Add(time.Hour))))
	}
	done := testReminder("u1", time.Now().Add(time.Hour))
	done.Status = StatusDelivered
	require.NoError(t, store.Create(ctx, done))
	require.NoError(t, store.Create(ctx, testReminder("u2", time.Now().Add(time.Hour))))

	n, err := store.CountPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_ListByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	later := testReminder("u1", time.Now().Add(2*time.Hour).Truncate(time.Second))
	sooner := testReminder("u1", time.Now().Add(time.Hour).Truncate(time.Second))
	other := testReminder("u2", time.Now().Add(time.Hour))
	for _, r := range []*Reminder{later, sooner, other} {
		require.NoError(t, store.Create(ctx, r))
	}

	list, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)
}
