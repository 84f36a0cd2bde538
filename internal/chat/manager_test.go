package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn feeds queued frames to ReadPump and records writes.
type fakeConn struct {
	mu      sync.Mutex
	in      chan []byte
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []EventKind
	for _, w := range c.written {
		var env envelope
		if err := json.Unmarshal(w, &env); err == nil {
			out = append(out, env.Kind)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestManager(t *testing.T, fb *fakeBackend, maxSessions int) *Manager {
	t.Helper()
	m, err := NewManager(fb, Options{PollInterval: time.Hour, DirectoryRefreshDelay: time.Hour}, maxSessions, zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		m.Shutdown()
		cancel()
	})
	return m
}

func connect(m *Manager, sessionID string) (*Client, *fakeConn) {
	conn := newFakeConn()
	c := &Client{Id: sessionID + "-client", SessionID: sessionID, Conn: conn, Send: make(chan []byte, 16), Manager: m}
	m.RegisterChan <- c
	go c.WritePump()
	go c.ReadPump()
	return c, conn
}

func TestManagerMountLoadsDirectory(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	m := newTestManager(t, fb, 4)

	id, err := m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	syncer, ok := m.Get(id)
	require.True(t, ok)
	assert.Len(t, syncer.Partners(), 1)
	assert.Equal(t, 1, m.Len())
}

func TestManagerMountWithDeepLink(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	fb.setThread(7, acmeThread())
	m := newTestManager(t, fb, 4)

	id, err := m.Mount(context.Background(), vendorSession, 7)
	require.NoError(t, err)

	syncer, _ := m.Get(id)
	st := syncer.Thread()
	require.NotNil(t, st.Partner)
	assert.Equal(t, int64(7), st.Partner.ID)
	assert.Len(t, st.Messages, 1)
}

func TestManagerMountKeepsSessionOnFetchError(t *testing.T) {
	fb := newFakeBackend()
	fb.rowsErr = errBackendDown
	m := newTestManager(t, fb, 4)

	id, err := m.Mount(context.Background(), vendorSession, 0)
	require.ErrorIs(t, err, errBackendDown)
	_, ok := m.Get(id)
	assert.True(t, ok)
}

func TestManagerFansOutEvents(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	fb.setThread(7, acmeThread())
	m := newTestManager(t, fb, 4)

	id, err := m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)
	_, conn := connect(m, id)
	assert.Eventually(t, func() bool { return m.Subscribers(id) == 1 }, time.Second, time.Millisecond)

	conn.in <- []byte(`{"kind":"open","partner_id":7}`)
	assert.Eventually(t, func() bool {
		for _, k := range conn.kinds() {
			if k == EventUnreadReset {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	conn.in <- []byte(`{"kind":"send","text":"See you at 5"}`)
	assert.Eventually(t, func() bool {
		for _, k := range conn.kinds() {
			if k == EventMessageSent {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	syncer, _ := m.Get(id)
	msgs := syncer.Thread().Messages
	assert.Equal(t, "See you at 5", msgs[len(msgs)-1].Message)
}

func TestManagerUnmountClosesClients(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	m := newTestManager(t, fb, 4)

	id, err := m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)
	_, conn := connect(m, id)
	assert.Eventually(t, func() bool { return m.Subscribers(id) == 1 }, time.Second, time.Millisecond)

	assert.True(t, m.Unmount(id))
	assert.False(t, m.Unmount(id))

	assert.Eventually(t, conn.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.Subscribers(id))
	_, ok := m.Get(id)
	assert.False(t, ok)
	close(conn.in)
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	m := newTestManager(t, fb, 2)

	first, err := m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)
	firstSync, _ := m.Get(first)
	_, err = m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)
	_, err = m.Mount(context.Background(), vendorSession, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(first)
	assert.False(t, ok)
	assert.ErrorIs(t, firstSync.RefreshDirectory(context.Background()), ErrSessionClosed)
}

func TestClientCommandsCancelledOnClose(t *testing.T) {
	fb := newFakeBackend()
	fb.rows = acmeRows()
	gate := make(chan struct{})
	defer close(gate)
	fb.gates[7] = gate

	syncer := NewSynchronizer(fb, vendorSession, Options{PollInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, syncer.RefreshDirectory(context.Background()))

	c := &Client{Id: "c1", SessionID: "s1", Conn: newFakeConn(), Send: make(chan []byte, 1)}
	c.dispatch(syncer, Command{Kind: "open", PartnerID: 7})
	assert.Eventually(t, func() bool { return fb.threadCallsFor(7) == 1 }, time.Second, time.Millisecond)

	syncer.Close()
	assert.Eventually(t, func() bool { return fb.cancelledCount() == 1 }, time.Second, time.Millisecond)
}
