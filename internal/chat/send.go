package chat

import (
	"context"
	"strings"

	"github.com/pelusa-v/event-inbox/internal/metrics"
)

// Send delivers the current draft to the active partner.
//
// Preconditions are checked before any network call: non-empty trimmed text,
// an active partner and a resolvable event context. The draft is cleared as
// soon as the request is issued and restored verbatim if it fails. On success
// the server's message is appended to the store and a directory refresh is
// scheduled.
func (s *Synchronizer) Send(ctx context.Context) (*Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	raw := s.draft
	text := strings.TrimSpace(raw)
	if text == "" {
		s.mu.Unlock()
		metrics.RecordSend("blocked")
		return nil, ErrEmptyMessage
	}
	if s.active == nil {
		s.mu.Unlock()
		metrics.RecordSend("blocked")
		s.fail("send", ErrNoPartner)
		return nil, ErrNoPartner
	}
	eventID := s.eventID
	if eventID == 0 {
		eventID = s.active.FirstEventID()
	}
	if eventID == 0 {
		s.mu.Unlock()
		metrics.RecordSend("blocked")
		s.fail("send", ErrNoEventContext)
		return nil, ErrNoEventContext
	}
	partnerID := s.active.ID
	gen := s.threadGen
	s.draft = ""
	s.sending = true
	s.mu.Unlock()

	msg, err := s.backend.Send(ctx, s.session, SendRequest{
		EventID:    eventID,
		ReceiverID: partnerID,
		Message:    text,
	})

	s.mu.Lock()
	s.sending = false
	if err != nil {
		s.draft = raw
		s.mu.Unlock()
		metrics.RecordSend("failed")
		s.fail("send", err)
		return nil, err
	}
	if gen == s.threadGen && !s.closed {
		s.messages = append(s.messages, *msg)
	} else {
		metrics.RecordStale("send")
	}
	s.mu.Unlock()

	metrics.RecordSend("ok")
	s.notify(Event{Kind: EventMessageSent, PartnerID: partnerID, MessageID: msg.ID})
	s.scheduleDirectoryRefresh()
	return msg, nil
}
