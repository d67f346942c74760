package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *stubConn) SetWriteDeadline(time.Time) error { return nil }

func (c *stubConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *stubConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *stubConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *stubConn) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.frames))
	for _, f := range c.frames {
		var ev Event
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *stubConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// blockingConn stalls its first write until closed.
type blockingConn struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	enter   sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{entered: make(chan struct{}), release: make(chan struct{})}
}

func (c *blockingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *blockingConn) WriteMessage(int, []byte) error {
	c.enter.Do(func() { close(c.entered) })
	<-c.release
	return errors.New("closed")
}

func (c *blockingConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.release) })
	return nil
}

func TestSendToConnectionPreservesOrder(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	conn := &stubConn{}
	hub.Register("c1", conn)

	for i := 0; i < 100; i++ {
		require.True(t, hub.SendToConnection("c1", NewEvent(EventResponseChunk, map[string]any{"n": i})))
	}

	require.Eventually(t, func() bool { return conn.count() == 100 }, time.Second, 5*time.Millisecond)
	for i, ev := range conn.events(t) {
		require.Equal(t, EventResponseChunk, ev.Type)
		require.EqualValues(t, i, ev.Data.(map[string]any)["n"])
	}
}

func TestSendAfterUnregisterIsDropped(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	conn := &stubConn{}
	hub.Register("c1", conn)
	hub.Join("room", "c1")
	hub.Unregister("c1")
	hub.Unregister("c1")

	require.False(t, hub.SendToConnection("c1", NewEvent(EventError, nil)))
	require.Zero(t, hub.BroadcastToRoom("room", NewEvent(EventError, nil)))
	require.False(t, hub.SendToConnection("never", NewEvent(EventError, nil)))
	require.True(t, conn.isClosed())
	require.Zero(t, hub.Count())
}

func TestRooms(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	a, b := &stubConn{}, &stubConn{}
	hub.Register("a", a)
	hub.Register("b", b)

	require.True(t, hub.Join("r", "a"))
	require.True(t, hub.Join("r", "b"))
	require.False(t, hub.Join("r", "ghost"))
	require.ElementsMatch(t, []string{"a", "b"}, hub.Members("r"))

	require.Equal(t, 2, hub.BroadcastToRoom("r", NewEvent(EventVoiceTranscript, map[string]any{"transcript": "hi"})))

	require.True(t, hub.Leave("r", "b"))
	require.False(t, hub.Leave("r", "b"))
	require.Equal(t, 1, hub.BroadcastToRoom("r", NewEvent(EventProcessing, nil)))

	require.Eventually(t, func() bool { return a.count() == 2 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, EventProcessing, a.events(t)[1].Type)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub(Config{SendBuffer: 1})
	defer hub.Close()

	conn := newBlockingConn()
	hub.Register("slow", conn)

	require.True(t, hub.SendToConnection("slow", NewEvent(EventResponseChunk, nil)))
	<-conn.entered
	require.True(t, hub.SendToConnection("slow", NewEvent(EventResponseChunk, nil)))
	require.False(t, hub.SendToConnection("slow", NewEvent(EventResponseChunk, nil)))
	require.Zero(t, hub.Count())
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	first, second := &stubConn{}, &stubConn{}
	hub.Register("c", first)
	hub.Register("c", second)

	require.True(t, first.isClosed())
	require.True(t, hub.SendToConnection("c", NewEvent(EventConnected, nil)))
	require.Eventually(t, func() bool { return second.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, hub.Count())
}

func TestConcurrentProducersOnDistinctConnections(t *testing.T) {
	hub := NewHub(Config{SendBuffer: 64})
	defer hub.Close()

	conns := make([]*stubConn, 8)
	for i := range conns {
		conns[i] = &stubConn{}
		hub.Register(fmt.Sprintf("c%d", i), conns[i])
	}

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				hub.SendToConnection(fmt.Sprintf("c%d", i), NewEvent(EventSentenceReady, map[string]any{"n": n}))
			}
		}(i)
	}
	wg.Wait()

	for _, conn := range conns {
		require.Eventually(t, func() bool { return conn.count() == 20 }, time.Second, 5*time.Millisecond)
		for n, ev := range conn.events(t) {
			require.EqualValues(t, n, ev.Data.(map[string]any)["n"])
		}
	}
}
