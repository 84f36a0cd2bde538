package chat

type EventKind string

const (
	EventDirectoryUpdate EventKind = "directory_update"
	EventThreadUpdate    EventKind = "thread_update"
	EventMessageSent     EventKind = "message_sent"
	EventUnreadReset     EventKind = "unread_reset"
	EventError           EventKind = "error"
)

// Event is a notification about a synchronizer state change. Payloads are
// signals only; clients fetch snapshots for the data.
type Event struct {
	Kind      EventKind `json:"kind"`
	PartnerID int64     `json:"partner_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Notifier receives synchronizer events. It must not block.
type Notifier func(Event)
