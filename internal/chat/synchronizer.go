package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pelusa-v/event-inbox/internal/metrics"
)

// Backend is the subset of the event-planning REST API the inbox consumes.
type Backend interface {
	ListConversations(ctx context.Context, s Session) ([]ConversationRow, error)
	FullConversation(ctx context.Context, s Session, partnerID int64) (*Thread, error)
	MarkRead(ctx context.Context, s Session, eventID int64) error
	Send(ctx context.Context, s Session, req SendRequest) (*Message, error)
	UnreadCount(ctx context.Context, s Session) (int, error)
}

type Options struct {
	PollInterval          time.Duration
	DirectoryRefreshDelay time.Duration
	Directory             DirectoryOptions
	Notify                Notifier
}

const (
	defaultPollInterval          = 30 * time.Second
	defaultDirectoryRefreshDelay = time.Second
)

// Synchronizer owns the state of one mounted inbox view: the partner
// directory, the active thread and its message store, the draft input and
// the poll task bound to the open thread.
//
// Every thread fetch is tagged with threadGen and every directory fetch with
// dirGen; a response whose tag no longer matches is dropped.
type Synchronizer struct {
	backend Backend
	session Session
	opts    Options
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sf     singleflight.Group // unread badge

	mu           sync.Mutex
	directory    *Directory
	dirLoaded    bool
	active       *Partner
	eventID      int64
	messages     []Message
	eventNames   map[int64]string
	loading      bool
	sending      bool
	draft        string
	threadGen    uint64
	dirGen       uint64
	deepLink     int64
	poller       *Poller
	refreshTimer *time.Timer
	closed       bool
}

func NewSynchronizer(backend Backend, session Session, opts Options, log zerolog.Logger) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DirectoryRefreshDelay < 0 {
		opts.DirectoryRefreshDelay = defaultDirectoryRefreshDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		backend:    backend,
		session:    session,
		opts:       opts,
		log:        log.With().Str("component", "inbox-sync").Int64("user_id", session.UserID).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		directory:  NewDirectory(nil),
		messages:   []Message{},
		eventNames: map[int64]string{},
	}
}

func (s *Synchronizer) Session() Session {
	return s.session
}

// Context is cancelled when the session closes.
func (s *Synchronizer) Context() context.Context {
	return s.ctx
}

// RefreshDirectory re-fetches the conversation summaries and rebuilds the
// directory from scratch. Each fetch is tagged with dirGen; when refreshes
// overlap only the most recently issued one is applied.
//
// A pending deep link whose partner is now listed is opened afterwards. Its
// failure surfaces as an error event and does not fail the refresh.
func (s *Synchronizer) RefreshDirectory(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.dirGen++
	gen := s.dirGen
	s.mu.Unlock()

	target, err := s.refreshDirectory(ctx, gen)
	if err != nil {
		if errors.Is(err, errStale) {
			return nil
		}
		return err
	}
	if target != 0 {
		if err := s.Open(ctx, target, 0); err != nil {
			s.log.Debug().Err(err).Int64("partner_id", target).Msg("deep link open failed")
		}
	}
	return nil
}

func (s *Synchronizer) refreshDirectory(ctx context.Context, gen uint64) (int64, error) {
	rows, err := s.backend.ListConversations(ctx, s.session)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if gen != s.dirGen {
		s.mu.Unlock()
		metrics.RecordStale("directory")
		s.log.Debug().Uint64("gen", gen).Msg("discarding superseded directory response")
		return 0, errStale
	}
	if err != nil {
		s.mu.Unlock()
		s.fail("list conversations", err)
		return 0, err
	}
	partners := BuildDirectory(rows, s.opts.Directory)
	s.directory = NewDirectory(partners)
	s.dirLoaded = true
	if s.active != nil {
		if fresh, ok := s.directory.Find(s.active.ID); ok {
			s.active = &fresh
		}
	}
	target := s.takeDeepLinkLocked()
	s.mu.Unlock()

	s.log.Debug().Int("partners", len(partners)).Msg("directory refreshed")
	s.notify(Event{Kind: EventDirectoryUpdate})
	return target, nil
}

// SetDeepLink records a partner to open once the directory contains it. If the
// directory is already loaded the partner is opened right away.
func (s *Synchronizer) SetDeepLink(ctx context.Context, partnerID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.deepLink = partnerID
	var target int64
	if s.dirLoaded {
		target = s.takeDeepLinkLocked()
	}
	s.mu.Unlock()

	if target != 0 {
		return s.Open(ctx, target, 0)
	}
	return nil
}

// takeDeepLinkLocked consumes the pending deep link when the directory holds
// that partner. It returns 0 when nothing should be opened, including when the
// partner is already the active one.
func (s *Synchronizer) takeDeepLinkLocked() int64 {
	id := s.deepLink
	if id == 0 {
		return 0
	}
	if _, ok := s.directory.Find(id); !ok {
		return 0
	}
	s.deepLink = 0
	if s.active != nil && s.active.ID == id {
		return 0
	}
	return id
}

// UnreadCount fetches the unread badge count. Concurrent calls share one
// backend request.
func (s *Synchronizer) UnreadCount(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}
	v, err, _ := s.sf.Do("unread", func() (interface{}, error) {
		n, err := s.backend.UnreadCount(ctx, s.session)
		if err != nil {
			s.fail("unread count", err)
			return 0, err
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Partners returns a copy of the current directory.
func (s *Synchronizer) Partners() []Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.List()
}

// DirectoryLoaded reports whether at least one directory fetch succeeded.
func (s *Synchronizer) DirectoryLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirLoaded
}

// Thread returns a copy of the active thread context.
func (s *Synchronizer) Thread() ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ThreadState{
		EventID:    s.eventID,
		Messages:   append([]Message{}, s.messages...),
		EventNames: make(map[int64]string, len(s.eventNames)),
		Loading:    s.loading,
		Sending:    s.sending,
		Draft:      s.draft,
	}
	if s.active != nil {
		p := s.active.clone()
		st.Partner = &p
	}
	for k, v := range s.eventNames {
		st.EventNames[k] = v
	}
	return st
}

// SetDraft replaces the input field text.
func (s *Synchronizer) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

func (s *Synchronizer) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Close tears the view down: the poll task and any pending directory refresh
// are cancelled and later calls return ErrSessionClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	p := s.poller
	s.poller = nil
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.mu.Unlock()

	s.cancel()
	if p != nil {
		p.Stop()
	}
	s.log.Debug().Msg("inbox session closed")
}

func (s *Synchronizer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// scheduleDirectoryRefresh refreshes the directory after the configured
// delay so the backend's last-message aggregation can catch up. A newer
// schedule replaces a pending one.
func (s *Synchronizer) scheduleDirectoryRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.refreshTimer = time.AfterFunc(s.opts.DirectoryRefreshDelay, func() {
		if err := s.RefreshDirectory(s.ctx); err != nil && err != ErrSessionClosed {
			s.log.Debug().Err(err).Msg("delayed directory refresh failed")
		}
	})
}

func (s *Synchronizer) notify(ev Event) {
	if s.opts.Notify != nil {
		s.opts.Notify(ev)
	}
}

// fail logs err and surfaces it to the user as an error event.
func (s *Synchronizer) fail(op string, err error) {
	s.log.Warn().Err(err).Str("op", op).Msg("inbox operation failed")
	s.notify(Event{Kind: EventError, Error: UserMessage(err)})
}
