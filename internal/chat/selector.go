package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/pelusa-v/event-inbox/internal/metrics"
)

// Open makes partnerID the active thread and loads its full history. eventID
// selects the event context for sending; 0 picks the partner's first event.
//
// On success the message store is replaced, the partner's unread total is
// zeroed locally and a best-effort mark-read is issued for the partner's first
// event. On failure the message store is left as it was.
func (s *Synchronizer) Open(ctx context.Context, partnerID, eventID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	p, ok := s.directory.Find(partnerID)
	if !ok {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %d", ErrUnknownPartner, partnerID)
		s.fail("open thread", err)
		return err
	}
	if eventID != 0 && !p.HasEvent(eventID) {
		s.mu.Unlock()
		err := fmt.Errorf("%w: event %d", ErrUnknownEvent, eventID)
		s.fail("open thread", err)
		return err
	}
	if eventID == 0 {
		eventID = p.FirstEventID()
	}

	s.threadGen++
	gen := s.threadGen
	s.active = &p
	s.eventID = eventID
	s.loading = true
	old := s.poller
	s.poller = NewPoller(s.opts.PollInterval, func(ctx context.Context) {
		s.pollTick(ctx, gen)
	})
	s.poller.Start(s.ctx)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	s.notify(Event{Kind: EventThreadUpdate, PartnerID: partnerID})

	thread, err := s.backend.FullConversation(ctx, s.session, partnerID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if gen != s.threadGen {
		s.mu.Unlock()
		metrics.RecordStale("thread")
		s.log.Debug().Int64("partner_id", partnerID).Msg("discarding superseded thread response")
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.fail("open thread", err)
		return err
	}
	s.replaceThreadLocked(thread)
	s.directory.ResetUnread(partnerID)
	s.active.UnreadTotal = 0
	markEvent := p.FirstEventID()
	s.mu.Unlock()

	s.notify(Event{Kind: EventUnreadReset, PartnerID: partnerID})
	s.notify(Event{Kind: EventThreadUpdate, PartnerID: partnerID})

	if markEvent != 0 {
		if err := s.backend.MarkRead(ctx, s.session, markEvent); err != nil {
			s.log.Warn().Err(err).Int64("event_id", markEvent).Msg("mark read failed")
		}
	}
	return nil
}

// RefreshThread re-fetches the open thread and replaces the message store.
func (s *Synchronizer) RefreshThread(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.active == nil {
		s.mu.Unlock()
		return ErrNoPartner
	}
	gen := s.threadGen
	s.mu.Unlock()

	err := s.refreshThread(ctx, gen)
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		s.fail("refresh thread", err)
	}
	return err
}

func (s *Synchronizer) pollTick(ctx context.Context, gen uint64) {
	err := s.refreshThread(ctx, gen)
	switch {
	case err == nil:
		metrics.RecordPoll("ok")
	case errors.Is(err, errStale), errors.Is(err, context.Canceled):
		metrics.RecordPoll("stale")
	default:
		metrics.RecordPoll("error")
		s.log.Warn().Err(err).Msg("thread poll failed")
	}
}

// refreshThread fetches the thread tagged gen and applies it only if gen is
// still the active thread.
func (s *Synchronizer) refreshThread(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if s.closed || s.active == nil || gen != s.threadGen {
		s.mu.Unlock()
		return errStale
	}
	partnerID := s.active.ID
	s.mu.Unlock()

	thread, err := s.backend.FullConversation(ctx, s.session, partnerID)

	s.mu.Lock()
	if s.closed || gen != s.threadGen {
		s.mu.Unlock()
		metrics.RecordStale("thread")
		return errStale
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.replaceThreadLocked(thread)
	s.mu.Unlock()

	s.notify(Event{Kind: EventThreadUpdate, PartnerID: partnerID})
	return nil
}

func (s *Synchronizer) replaceThreadLocked(t *Thread) {
	msgs := []Message{}
	names := map[int64]string{}
	if t != nil {
		msgs = append(msgs, t.Messages...)
		for k, v := range t.EventsContext {
			names[k] = v
		}
	}
	s.messages = msgs
	s.eventNames = names
}
