// Package backend is the REST client for the event-planning API's chat
// endpoints. Every call carries the caller's Session explicitly.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/event-inbox/internal/chat"
	"github.com/pelusa-v/event-inbox/internal/metrics"
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Client implements chat.Backend over resty.
type Client struct {
	httpClient *resty.Client
	limiters   *limiterPool
	log        zerolog.Logger
}

// NewClient creates a Resty-backed client.
func NewClient(opts Options, log zerolog.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(opts.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(opts.Timeout),
		limiters: newLimiterPool(opts.RPS, opts.Burst),
		log:      log.With().Str("component", "backend-client").Logger(),
	}
}

type markReadRequest struct {
	EventID int64 `json:"event_id"`
}

type sendResponse struct {
	ChatMessage *chat.Message `json:"chat_message"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// ListConversations calls GET /chat/{role}/conversations.
func (c *Client) ListConversations(ctx context.Context, s chat.Session) ([]chat.ConversationRow, error) {
	if !s.Role.Valid() {
		return nil, fmt.Errorf("list conversations: unknown role %q", s.Role)
	}
	var raw json.RawMessage
	path := "/chat/" + string(s.Role) + "/conversations"
	if err := c.do(ctx, s, "list_conversations", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return decodeRows(raw)
}

// decodeRows accepts a bare array or an object wrapping it under
// "conversations" or "data".
func decodeRows(raw json.RawMessage) ([]chat.ConversationRow, error) {
	rows := []chat.ConversationRow{}
	if len(raw) == 0 || string(raw) == "null" {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Conversations []chat.ConversationRow `json:"conversations"`
		Data          []chat.ConversationRow `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("list conversations: decode response: %w", err)
	}
	if wrapped.Conversations != nil {
		return wrapped.Conversations, nil
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return rows, nil
}

// FullConversation calls GET /chat/full-conversation/{partnerId}.
func (c *Client) FullConversation(ctx context.Context, s chat.Session, partnerID int64) (*chat.Thread, error) {
	var thread chat.Thread
	path := "/chat/full-conversation/" + strconv.FormatInt(partnerID, 10)
	if err := c.do(ctx, s, "full_conversation", http.MethodGet, path, nil, &thread); err != nil {
		return nil, err
	}
	if thread.Messages == nil {
		thread.Messages = []chat.Message{}
	}
	if thread.EventsContext == nil {
		thread.EventsContext = map[int64]string{}
	}
	return &thread, nil
}

// MarkRead calls PUT /chat/mark-read.
func (c *Client) MarkRead(ctx context.Context, s chat.Session, eventID int64) error {
	return c.do(ctx, s, "mark_read", http.MethodPut, "/chat/mark-read", markReadRequest{EventID: eventID}, nil)
}

// Send calls POST /chat/send. It is never retried.
func (c *Client) Send(ctx context.Context, s chat.Session, req chat.SendRequest) (*chat.Message, error) {
	var out sendResponse
	if err := c.do(ctx, s, "send", http.MethodPost, "/chat/send", req, &out); err != nil {
		return nil, err
	}
	if out.ChatMessage == nil {
		return nil, fmt.Errorf("send: response has no chat_message")
	}
	return out.ChatMessage, nil
}

// UnreadCount calls GET /chat/unread-count.
func (c *Client) UnreadCount(ctx context.Context, s chat.Session) (int, error) {
	var out unreadResponse
	if err := c.do(ctx, s, "unread_count", http.MethodGet, "/chat/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (c *Client) do(ctx context.Context, s chat.Session, op, method, path string, body, result interface{}) error {
	if err := c.limiters.wait(ctx, limiterKey(s)); err != nil {
		return &transportError{op: op, err: err}
	}

	request := c.httpClient.R().
		SetContext(ctx).
		ForceContentType("application/json")
	if s.Token != "" {
		request.SetAuthToken(s.Token)
	}
	if body != nil {
		request.SetBody(body)
	}
	if result != nil {
		request.SetResult(result)
	}

	start := time.Now()
	resp, err := request.Execute(method, path)
	if err != nil {
		metrics.RecordBackendRequest(op, 0, time.Since(start))
		c.log.Debug().Err(err).Str("op", op).Msg("backend request failed")
		return &transportError{op: op, err: err}
	}
	metrics.RecordBackendRequest(op, resp.StatusCode(), time.Since(start))

	if !resp.IsSuccess() {
		return &APIError{
			Op:      op,
			Status:  resp.StatusCode(),
			Message: extractMessage(resp.StatusCode(), resp.Body()),
		}
	}
	return nil
}

func limiterKey(s chat.Session) string {
	return string(s.Role) + ":" + strconv.FormatInt(s.UserID, 10)
}

// Ensure interface compliance.
var _ chat.Backend = (*Client)(nil)
