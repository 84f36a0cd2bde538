package chat

import "time"

// Role selects which conversation listing the backend serves.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleVendor    Role = "vendor"
	RoleClient    Role = "client"
)

// Valid reports whether r is one of the known viewing roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOrganizer, RoleVendor, RoleClient:
		return true
	}
	return false
}

// Session is the credential and identity a mounted inbox acts as.
// It is read-only from the synchronizer's point of view.
type Session struct {
	Token  string
	UserID int64
	Role   Role
}

type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	EventID    int64     `json:"event_id"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConversationRow is one (partner, event) summary as listed by the backend.
type ConversationRow struct {
	PartnerID       int64      `json:"partner_id"`
	PartnerName     string     `json:"partner_name"`
	PartnerEmail    string     `json:"partner_email"`
	PartnerRole     string     `json:"partner_role"`
	EventID         int64      `json:"event_id"`
	EventName       string     `json:"event_name"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     int        `json:"unread_count"`
}

type PartnerEvent struct {
	ID   int64  `json:"event_id"`
	Name string `json:"event_name"`
}

// Partner is the aggregated directory entry for one counterpart.
type Partner struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Role            string         `json:"role"`
	Events          []PartnerEvent `json:"events"`
	UnreadTotal     int            `json:"unread_total"`
	LastMessage     string         `json:"last_message"`
	LastMessageTime *time.Time     `json:"last_message_time,omitempty"`
}

// FirstEventID returns the partner's first associated event, or 0 when none exist.
func (p *Partner) FirstEventID() int64 {
	if p == nil || len(p.Events) == 0 {
		return 0
	}
	return p.Events[0].ID
}

// HasEvent reports whether eventID is one of the partner's event contexts.
func (p *Partner) HasEvent(eventID int64) bool {
	if p == nil {
		return false
	}
	for _, e := range p.Events {
		if e.ID == eventID {
			return true
		}
	}
	return false
}

func (p Partner) clone() Partner {
	cp := p
	cp.Events = append([]PartnerEvent(nil), p.Events...)
	if p.LastMessageTime != nil {
		t := *p.LastMessageTime
		cp.LastMessageTime = &t
	}
	return cp
}

// Thread is the full history with one partner across all shared events.
type Thread struct {
	Messages      []Message        `json:"messages"`
	EventsContext map[int64]string `json:"events_context"`
}

type SendRequest struct {
	EventID    int64  `json:"event_id"`
	ReceiverID int64  `json:"receiver_id"`
	Message    string `json:"message"`
}

// ThreadState is a copy of the active thread context.
type ThreadState struct {
	Partner    *Partner         `json:"partner"`
	EventID    int64            `json:"event_id"`
	Messages   []Message        `json:"messages"`
	EventNames map[int64]string `json:"event_names"`
	Loading    bool             `json:"loading"`
	Sending    bool             `json:"sending"`
	Draft      string           `json:"draft"`
}
