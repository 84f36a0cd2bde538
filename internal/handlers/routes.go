package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Register mounts the inbox API on r.
func (h *InboxHandler) Register(r fiber.Router) {
	r.Get("/healthz", h.HealthHandler)

	api := r.Group("/api")
	api.Get("/ws/:session", h.UpgradeWS, websocket.New(h.RegisterHandler))

	sessions := api.Group("/sessions")
	sessions.Post("/", h.Mount)
	sessions.Delete("/:id", h.Unmount)
	sessions.Get("/:id/partners", h.Partners)
	sessions.Post("/:id/partners/refresh", h.RefreshPartners)
	sessions.Post("/:id/open", h.Open)
	sessions.Get("/:id/thread", h.Thread)
	sessions.Post("/:id/thread/refresh", h.RefreshThread)
	sessions.Put("/:id/draft", h.Draft)
	sessions.Post("/:id/send", h.Send)
	sessions.Get("/:id/unread-count", h.UnreadCount)
}
