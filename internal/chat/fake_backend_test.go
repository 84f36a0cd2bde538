package chat

import (
	"context"
	"errors"
	"sync"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory Backend that records calls.
type fakeBackend struct {
	mu sync.Mutex

	rows       []ConversationRow
	rowsErr    error
	threads    map[int64]*Thread
	threadErr  map[int64]error
	gates      map[int64]chan struct{}
	listGate   chan struct{} // held by the next list call only
	unreadGate chan struct{}
	markErr    error
	sendErr    error
	nextID     int64
	unread     int

	listCalls   int
	unreadCalls int
	cancelled   int
	threadCalls map[int64]int
	markCalls   []int64
	sendCalls   []SendRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		threads:     map[int64]*Thread{},
		threadErr:   map[int64]error{},
		gates:       map[int64]chan struct{}{},
		threadCalls: map[int64]int{},
		nextID:      100,
	}
}

// ListConversations snapshots the rows when called, so a gated call returns
// what the backend held at request time.
func (f *fakeBackend) ListConversations(ctx context.Context, s Session) ([]ConversationRow, error) {
	f.mu.Lock()
	f.listCalls++
	rows, rowsErr := append([]ConversationRow(nil), f.rows...), f.rowsErr
	gate := f.listGate
	f.listGate = nil
	f.mu.Unlock()

	if err := f.wait(ctx, gate); err != nil {
		return nil, err
	}
	if rowsErr != nil {
		return nil, rowsErr
	}
	return rows, nil
}

func (f *fakeBackend) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
		return ctx.Err()
	}
}

func (f *fakeBackend) FullConversation(ctx context.Context, s Session, partnerID int64) (*Thread, error) {
	f.mu.Lock()
	f.threadCalls[partnerID]++
	gate := f.gates[partnerID]
	f.mu.Unlock()

	if err := f.wait(ctx, gate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.threadErr[partnerID]; err != nil {
		return nil, err
	}
	t, ok := f.threads[partnerID]
	if !ok {
		return &Thread{Messages: []Message{}, EventsContext: map[int64]string{}}, nil
	}
	cp := &Thread{
		Messages:      append([]Message{}, t.Messages...),
		EventsContext: map[int64]string{},
	}
	for k, v := range t.EventsContext {
		cp.EventsContext[k] = v
	}
	return cp, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, s Session, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, eventID)
	return f.markErr
}

func (f *fakeBackend) Send(ctx context.Context, s Session, req SendRequest) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	return &Message{
		ID:         f.nextID,
		SenderID:   s.UserID,
		ReceiverID: req.ReceiverID,
		EventID:    req.EventID,
		Message:    req.Message,
	}, nil
}

func (f *fakeBackend) UnreadCount(ctx context.Context, s Session) (int, error) {
	f.mu.Lock()
	f.unreadCalls++
	gate := f.unreadGate
	f.mu.Unlock()

	if err := f.wait(ctx, gate); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.listCalls + len(f.markCalls) + len(f.sendCalls)
	for _, c := range f.threadCalls {
		n += c
	}
	return n
}

func (f *fakeBackend) threadCallsFor(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadCalls[id]
}

func (f *fakeBackend) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeBackend) unreadCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadCalls
}

func (f *fakeBackend) cancelledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeBackend) setThread(id int64, t *Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[id] = t
}

// eventRecorder collects notifier events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *eventRecorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == EventError {
			out = append(out, ev.Error)
		}
	}
	return out
}
