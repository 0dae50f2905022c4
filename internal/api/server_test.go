package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpike5/discordbot-sub015/internal/reminder"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopChannel struct{}

func (noopChannel) ResolveUser(ctx context.Context, userID string) (*reminder.Recipient, error) {
	return &reminder.Recipient{UserID: userID, ChannelID: "dm"}, nil
}

func (noopChannel) SendDirectMessage(ctx context.Context, r *reminder.Recipient, c reminder.Content) error {
	return nil
}

func newTestServer(t *testing.T, maxPerUser int) *Server {
	t.Helper()

	store, err := reminder.NewStore(filepath.Join(t.TempDir(), "reminders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := reminder.NewService(store, noopChannel{}, reminder.ServiceConfig{
		MaxDeliveryAttempts: 3,
		MaxRemindersPerUser: maxPerUser,
		MaxAdvanceDays:      365,
		MinAdvanceMinutes:   1,
	}, zap.NewNop())

	return NewServer(svc, zap.NewNop())
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func createBody(userID string) map[string]any {
	return map[string]any{
		"guild_id":   "g1",
		"channel_id": "c1",
		"user_id":    userID,
		"message":    "drink water",
		"trigger_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, 25)

	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CreateReminder(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		srv := newTestServer(t, 25)

		w := doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var r reminder.Reminder
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		assert.NotEqual(t, uuid.Nil, r.ID)
		assert.Equal(t, reminder.StatusPending, r.Status)
		assert.Equal(t, "drink water", r.Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		srv := newTestServer(t, 25)

		w := doJSON(t, srv, http.MethodPost, "/api/reminders", map[string]any{"user_id": "u1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("trigger in the past", func(t *testing.T) {
		srv := newTestServer(t, 25)

		body := createBody("u1")
		body["trigger_at"] = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
		w := doJSON(t, srv, http.MethodPost, "/api/reminders", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		srv := newTestServer(t, 1)

		w := doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestServer_ListReminders(t *testing.T) {
	srv := newTestServer(t, 25)

	for i := 0; i < 3; i++ {
		w := doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("by user", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders?user_id=u1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Reminders []reminder.Reminder `json:"reminders"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Reminders, 3)
	})

	t.Run("empty for unknown user", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders?user_id=nobody", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"reminders":[]}`, w.Body.String())
	})

	t.Run("missing user_id", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_GetReminder(t *testing.T) {
	srv := newTestServer(t, 25)

	w := doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	t.Run("found", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders/"+created.ID.String(), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/reminders/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_CancelReminder(t *testing.T) {
	srv := newTestServer(t, 25)

	w := doJSON(t, srv, http.MethodPost, "/api/reminders", createBody("u1"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := fmt.Sprintf("/api/reminders/%s", created.ID)

	w = doJSON(t, srv, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Already cancelled.
	w = doJSON(t, srv, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, srv, http.MethodDelete, "/api/reminders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
