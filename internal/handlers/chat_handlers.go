package handlers

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/event-inbox/internal/backend"
	"github.com/pelusa-v/event-inbox/internal/chat"
)

// InboxHandler exposes mounted inbox sessions over HTTP and websocket.
type InboxHandler struct {
	manager *chat.Manager
	log     zerolog.Logger
}

func NewInboxHandler(manager *chat.Manager, log zerolog.Logger) *InboxHandler {
	return &InboxHandler{
		manager: manager,
		log:     log.With().Str("component", "inbox-handler").Logger(),
	}
}

type mountRequest struct {
	Role      chat.Role `json:"role"`
	PartnerID int64     `json:"partner_id"`
}

type openRequest struct {
	PartnerID int64 `json:"partner_id"`
	EventID   int64 `json:"event_id"`
}

type textRequest struct {
	Text *string `json:"text"`
}

// Mount POST /api/sessions
func (h *InboxHandler) Mount(c *fiber.Ctx) error {
	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "missing_token", "Missing bearer token")
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Get("X-User-Id")), 10, 64)
	if err != nil || userID <= 0 {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_user", "X-User-Id must be a positive integer")
	}
	var req mountRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
	}
	if !req.Role.Valid() {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_role", "Role must be organizer, vendor or client")
	}

	id, err := h.manager.Mount(c.UserContext(), chat.Session{Token: token, UserID: userID, Role: req.Role}, req.PartnerID)
	syncer, ok := h.manager.Get(id)
	if !ok {
		return writeError(c, chat.ErrSessionClosed)
	}
	resp := fiber.Map{
		"session_id": id,
		"partners":   syncer.Partners(),
		"loaded":     syncer.DirectoryLoaded(),
	}
	// The session survives a failed first fetch; the client retries via refresh.
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", id).Msg("initial directory fetch failed")
		resp["error"] = chat.UserMessage(err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Unmount DELETE /api/sessions/:id
func (h *InboxHandler) Unmount(c *fiber.Ctx) error {
	if !h.manager.Unmount(c.Params("id")) {
		return sessionNotFound(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Partners GET /api/sessions/:id/partners
func (h *InboxHandler) Partners(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	return c.JSON(fiber.Map{"partners": syncer.Partners(), "loaded": syncer.DirectoryLoaded()})
}

// RefreshPartners POST /api/sessions/:id/partners/refresh
func (h *InboxHandler) RefreshPartners(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	if err := syncer.RefreshDirectory(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"partners": syncer.Partners(), "loaded": true})
}

// Open POST /api/sessions/:id/open
func (h *InboxHandler) Open(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	var req openRequest
	if err := c.BodyParser(&req); err != nil || req.PartnerID <= 0 {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "partner_id is required")
	}
	if err := syncer.Open(c.UserContext(), req.PartnerID, req.EventID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(syncer.Thread())
}

// Thread GET /api/sessions/:id/thread
func (h *InboxHandler) Thread(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	return c.JSON(syncer.Thread())
}

// RefreshThread POST /api/sessions/:id/thread/refresh
func (h *InboxHandler) RefreshThread(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	if err := syncer.RefreshThread(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(syncer.Thread())
}

// Draft PUT /api/sessions/:id/draft
func (h *InboxHandler) Draft(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	var req textRequest
	if err := c.BodyParser(&req); err != nil || req.Text == nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "text is required")
	}
	syncer.SetDraft(*req.Text)
	return c.SendStatus(fiber.StatusNoContent)
}

// Send POST /api/sessions/:id/send
func (h *InboxHandler) Send(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	if len(c.Body()) > 0 {
		var req textRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
		}
		if req.Text != nil {
			syncer.SetDraft(*req.Text)
		}
	}
	msg, err := syncer.Send(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// UnreadCount GET /api/sessions/:id/unread-count
func (h *InboxHandler) UnreadCount(c *fiber.Ctx) error {
	syncer, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return sessionNotFound(c)
	}
	n, err := syncer.UnreadCount(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// UpgradeWS rejects non-websocket requests and unknown sessions before the
// upgrade.
func (h *InboxHandler) UpgradeWS(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return errorJSON(c, fiber.StatusUpgradeRequired, "upgrade_required", "Websocket upgrade required")
	}
	if _, ok := h.manager.Get(c.Params("session")); !ok {
		return sessionNotFound(c)
	}
	return c.Next()
}

// RegisterHandler GET /api/ws/:session
func (h *InboxHandler) RegisterHandler(c *websocket.Conn) {
	client := &chat.Client{
		Id:        uuid.NewString(),
		SessionID: c.Params("session"),
		Conn:      c,
		Send:      make(chan []byte, 16),
		Manager:   h.manager,
	}
	h.manager.RegisterChan <- client
	h.log.Debug().Str("session_id", client.SessionID).Str("client_id", client.Id).Msg("websocket client registered")
	go client.WritePump()
	client.ReadPump()
}

// HealthHandler GET /healthz
func (h *InboxHandler) HealthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "sessions": h.manager.Len()})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message, "code": code})
}

func sessionNotFound(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusNotFound, "session_not_found", "Inbox session not found")
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	return errorJSON(c, status, code, chat.UserMessage(err))
}

// classify maps an inbox error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return fiber.StatusUnprocessableEntity, "empty_message"
	case errors.Is(err, chat.ErrNoPartner):
		return fiber.StatusUnprocessableEntity, "no_partner"
	case errors.Is(err, chat.ErrNoEventContext):
		return fiber.StatusUnprocessableEntity, "no_event_context"
	case errors.Is(err, chat.ErrUnknownPartner):
		return fiber.StatusNotFound, "unknown_partner"
	case errors.Is(err, chat.ErrUnknownEvent):
		return fiber.StatusNotFound, "unknown_event"
	case errors.Is(err, chat.ErrSessionClosed):
		return fiber.StatusGone, "session_closed"
	case errors.As(err, &apiErr):
		return upstreamStatus(apiErr.Status), "backend_error"
	case isTimeout(err):
		return fiber.StatusGatewayTimeout, "backend_timeout"
	case errors.Is(err, backend.ErrTransport):
		return fiber.StatusBadGateway, "backend_unreachable"
	}
	return fiber.StatusInternalServerError, "internal"
}

// upstreamStatus passes auth and not-found responses through and reports
// everything else as a bad gateway.
func upstreamStatus(status int) int {
	switch status {
	case fiber.StatusUnauthorized, fiber.StatusForbidden, fiber.StatusNotFound:
		return status
	}
	return fiber.StatusBadGateway
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
