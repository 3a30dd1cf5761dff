package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/words"
	"github.com/stretchr/testify/require"
)

// testConn records every message it is sent.
type testConn struct {
	roomID   string
	playerID string

	lock     sync.Mutex
	received []*messages.Message
	fail     bool
	closed   bool
}

func newTestConn(roomID, playerID string) *testConn {
	return &testConn{roomID: roomID, playerID: playerID}
}

func (c *testConn) RoomID() string   { return c.roomID }
func (c *testConn) PlayerID() string { return c.playerID }

func (c *testConn) Send(_ context.Context, msg *messages.Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.fail || c.closed {
		return errors.New("broken pipe")
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *testConn) Close(string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
}

func (c *testConn) setFail(fail bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.fail = fail
}

func (c *testConn) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

func (c *testConn) ofType(messageType string) []*messages.Message {
	c.lock.Lock()
	defer c.lock.Unlock()
	var out []*messages.Message
	for _, m := range c.received {
		if m.Type == messageType {
			out = append(out, m)
		}
	}
	return out
}

func (c *testConn) reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.received = nil
}

func (c *testConn) snapshots(t *testing.T) []*types.Snapshot {
	var out []*types.Snapshot
	for _, m := range c.ofType(messages.MessageTypeServerGameStateUpdate) {
		snapshot := &types.Snapshot{}
		require.NoError(t, json.Unmarshal(m.Payload, snapshot))
		out = append(out, snapshot)
	}
	return out
}

func (c *testConn) lastSnapshot(t *testing.T) *types.Snapshot {
	snapshots := c.snapshots(t)
	require.NotEmpty(t, snapshots, "no snapshot received by %s", c.playerID)
	return snapshots[len(snapshots)-1]
}

func (c *testConn) chats(t *testing.T) []messages.ChatMessage {
	var out []messages.ChatMessage
	for _, m := range c.ofType(messages.MessageTypeServerChatMessage) {
		chat := messages.ChatMessage{}
		require.NoError(t, json.Unmarshal(m.Payload, &chat))
		out = append(out, chat)
	}
	return out
}

func (c *testConn) hasChat(t *testing.T, text string) bool {
	for _, chat := range c.chats(t) {
		if chat.Message == text {
			return true
		}
	}
	return false
}

func (c *testConn) errors(t *testing.T) []string {
	var out []string
	for _, m := range c.ofType(messages.MessageTypeServerError) {
		e := messages.ErrorMessage{}
		require.NoError(t, json.Unmarshal(m.Payload, &e))
		out = append(out, e.Message)
	}
	return out
}

func (c *testConn) wordsToDraw(t *testing.T) []messages.WordToDraw {
	var out []messages.WordToDraw
	for _, m := range c.ofType(messages.MessageTypeServerWordToDraw) {
		w := messages.WordToDraw{}
		require.NoError(t, json.Unmarshal(m.Payload, &w))
		out = append(out, w)
	}
	return out
}

func (c *testConn) gameOvers(t *testing.T) []messages.GameOver {
	var out []messages.GameOver
	for _, m := range c.ofType(messages.MessageTypeServerGameOver) {
		g := messages.GameOver{}
		require.NoError(t, json.Unmarshal(m.Payload, &g))
		out = append(out, g)
	}
	return out
}

type testOptions struct {
	drawDuration time.Duration
	advanceDelay time.Duration
	archive      queue.Queue
}

// slow timers by default so nothing fires unless a test asks for it
func newTestRegistry(t *testing.T, opts testOptions) (*Registry, *network.ConnectionManager) {
	if opts.drawDuration == 0 {
		opts.drawDuration = time.Hour
	}
	if opts.advanceDelay == 0 {
		opts.advanceDelay = time.Hour
	}
	connections := network.NewConnectionManager()
	registry := NewRegistry(NewRegistryOptions{
		Connections:  connections,
		Pool:         words.NewPool(words.NewPoolOptions{Seed: 99}),
		Archive:      opts.archive,
		DrawDuration: opts.drawDuration,
		AdvanceDelay: opts.advanceDelay,
	})
	t.Cleanup(registry.Close)
	return registry, connections
}

type testRoom struct {
	session *Session
	ids     []string
	conns   []*testConn
}

// newTestRoom creates a room whose host is names[0], with every player connected.
func newTestRoom(t *testing.T, registry *Registry, totalRounds int, category string, names ...string) *testRoom {
	s, hostID, err := registry.CreateRoom(names[0], totalRounds, category)
	require.NoError(t, err)

	room := &testRoom{session: s, ids: []string{hostID}}
	for _, name := range names[1:] {
		id, _, err := registry.JoinRoom(s.ID(), name)
		require.NoError(t, err)
		room.ids = append(room.ids, id)
	}
	for _, id := range room.ids {
		conn := newTestConn(s.ID(), id)
		require.NoError(t, s.AddConnection(context.Background(), conn))
		room.conns = append(room.conns, conn)
	}
	for _, conn := range room.conns {
		conn.reset()
	}
	return room
}

func (r *testRoom) drawerID() string {
	snapshot := r.session.Snapshot()
	if snapshot.CurrentDrawerID == nil {
		return ""
	}
	return *snapshot.CurrentDrawerID
}

func (r *testRoom) conn(playerID string) *testConn {
	for i, id := range r.ids {
		if id == playerID {
			return r.conns[i]
		}
	}
	return nil
}
