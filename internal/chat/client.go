package chat

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
)

// Client is one websocket connection watching an inbox session.
type Client struct {
	Id        string
	SessionID string
	Conn      ConnLike
	Send      chan []byte
	Manager   *Manager
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Command is a client-to-server websocket frame.
type Command struct {
	Kind      string `json:"kind"` // open | send | draft | refresh_directory | refresh_thread
	PartnerID int64  `json:"partner_id,omitempty"`
	EventID   int64  `json:"event_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ReadPump dispatches commands until the connection fails. Network-bound
// commands run in their own goroutine so the view stays responsive; draft
// updates apply in order.
func (c *Client) ReadPump() {
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			c.Manager.UnregisterChan <- c
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		syncer, ok := c.Manager.Get(c.SessionID)
		if !ok {
			c.Manager.UnregisterChan <- c
			return
		}
		c.dispatch(syncer, cmd)
	}
}

func (c *Client) dispatch(syncer *Synchronizer, cmd Command) {
	ctx := syncer.Context()
	switch cmd.Kind {
	case "draft":
		syncer.SetDraft(cmd.Text)
	case "send":
		if cmd.Text != "" {
			syncer.SetDraft(cmd.Text)
		}
		go func() { _, _ = syncer.Send(ctx) }()
	case "open":
		go func() { _ = syncer.Open(ctx, cmd.PartnerID, cmd.EventID) }()
	case "refresh_directory":
		go func() { _ = syncer.RefreshDirectory(ctx) }()
	case "refresh_thread":
		go func() { _ = syncer.RefreshThread(ctx) }()
	}
}

// WritePump forwards queued frames until Send is closed, then closes the
// connection.
func (c *Client) WritePump() {
	for data := range c.Send {
		_ = c.Conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = c.Conn.Close()
}
