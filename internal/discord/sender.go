// Package discord implements the reminder delivery channel over the
// Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cpike5/discordbot-sub015/internal/reminder"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Discord JSON error codes this client classifies.
const (
	codeUnknownUser      = 10013
	codeCannotSendToUser = 50007
)

// Sender sends direct messages via the Discord REST API.
type Sender struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewSender creates a Sender authenticated with the given bot token.
// baseURL may be empty to use the public Discord API.
func NewSender(token, baseURL string, timeout time.Duration) *Sender {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Sender{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type createDMRequest struct {
	RecipientID string `json:"recipient_id"`
}

type dmChannel struct {
	ID string `json:"id"`
}

type createMessageRequest struct {
	Content string `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResolveUser opens (or fetches) the DM channel for the user. Discord reports
// an unknown recipient at this step, which maps to reminder.ErrUserNotFound.
func (s *Sender) ResolveUser(ctx context.Context, userID string) (*reminder.Recipient, error) {
	var ch dmChannel
	status, apiErr, err := s.post(ctx, "/users/@me/channels", createDMRequest{RecipientID: userID}, &ch)
	if err != nil {
		return nil, err
	}
	if apiErr != nil && apiErr.Code == codeUnknownUser {
		return nil, fmt.Errorf("resolve user %s: %w", userID, reminder.ErrUserNotFound)
	}
	if status < 200 || status >= 300 {
		return nil, apiErrorf("create DM channel", status, apiErr)
	}

	return &reminder.Recipient{UserID: userID, ChannelID: ch.ID}, nil
}

// SendDirectMessage posts the rendered reminder into the recipient's DM
// channel. A recipient with DMs closed maps to reminder.ErrDMsDisabled.
func (s *Sender) SendDirectMessage(ctx context.Context, r *reminder.Recipient, c reminder.Content) error {
	payload := createMessageRequest{Content: renderContent(c)}

	status, apiErr, err := s.post(ctx, "/channels/"+r.ChannelID+"/messages", payload, nil)
	if err != nil {
		return err
	}
	if apiErr != nil && apiErr.Code == codeCannotSendToUser {
		return fmt.Errorf("send DM to %s: %w", r.UserID, reminder.ErrDMsDisabled)
	}
	if status < 200 || status >= 300 {
		return apiErrorf("create message", status, apiErr)
	}
	return nil
}

// renderContent formats the DM body. Discord renders <t:unix:f> and <t:unix:R>
// as localized timestamps.
func renderContent(c reminder.Content) string {
	return fmt.Sprintf("⏰ **Reminder:** %s\n\nScheduled for <t:%d:f> · set <t:%d:R>",
		c.Text, c.ScheduledAt.Unix(), c.CreatedAt.Unix())
}

// post sends a JSON request and decodes either the success payload into out or
// the Discord error envelope.
func (s *Sender) post(ctx context.Context, path string, payload, out any) (int, *apiError, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal discord request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read discord response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return resp.StatusCode, nil, fmt.Errorf("failed to parse discord response: %w", err)
			}
		}
		return resp.StatusCode, nil, nil
	}

	var apiErr apiError
	if err := json.Unmarshal(respBody, &apiErr); err != nil {
		// Non-JSON error body; surface the status alone.
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &apiErr, nil
}

func apiErrorf(op string, status int, apiErr *apiError) error {
	if apiErr != nil {
		return fmt.Errorf("discord API error: %s: %d (code %d: %s)", op, status, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("discord API error: %s: %d", op, status)
}
