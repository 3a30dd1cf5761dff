package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotConnected     = errors.New("player is not connected")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is a live, per-player message channel owned by the transport.
type Connection interface {
	RoomID() string
	PlayerID() string
	// Send must not block on the network: slow peers fail instead.
	Send(ctx context.Context, msg *messages.Message) error
	Close(reason string)
}

// DisconnectHandler is notified once per released connection.
type DisconnectHandler func(conn Connection)

// ConnectionManager maps player ids to their live connection. Unregister and
// Release only drop the reference; Disconnect also closes the handle.
type ConnectionManager struct {
	connections     map[string]Connection
	connectionsLock sync.RWMutex

	handlerLock       sync.RWMutex
	disconnectHandler DisconnectHandler
}

// NewConnectionManager creates a new ConnectionManager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]Connection),
	}
}

// SetDisconnectHandler sets the callback for connections lost through Disconnect.
func (cm *ConnectionManager) SetDisconnectHandler(handler DisconnectHandler) {
	cm.handlerLock.Lock()
	defer cm.handlerLock.Unlock()
	cm.disconnectHandler = handler
}

// Register associates conn with its player, replacing any earlier handle.
// The replaced handle, if any, is returned for the caller to close.
func (cm *ConnectionManager) Register(conn Connection) Connection {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()

	previous := cm.connections[conn.PlayerID()]
	cm.connections[conn.PlayerID()] = conn
	if previous == conn {
		return nil
	}
	return previous
}

// Unregister removes whatever handle is registered for the player.
func (cm *ConnectionManager) Unregister(playerID string) {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()
	delete(cm.connections, playerID)
}

// Release removes conn only if it is still the registered handle for its
// player. It reports whether anything was removed.
func (cm *ConnectionManager) Release(conn Connection) bool {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()

	current, ok := cm.connections[conn.PlayerID()]
	if !ok || current != conn {
		return false
	}
	delete(cm.connections, conn.PlayerID())
	return true
}

// Disconnect releases conn and, if it was still registered, closes it and
// notifies the disconnect handler on a new goroutine. Repeated calls are no-ops.
func (cm *ConnectionManager) Disconnect(conn Connection) {
	if !cm.Release(conn) {
		return
	}
	log.Debug("Player %s disconnected from room %s", conn.PlayerID(), conn.RoomID())
	// the transport stops reading once the handle is closed
	conn.Close("disconnected")

	cm.handlerLock.RLock()
	handler := cm.disconnectHandler
	cm.handlerLock.RUnlock()
	if handler != nil {
		go handler(conn)
	}
}

// Get returns the handle registered for a player.
func (cm *ConnectionManager) Get(playerID string) (Connection, bool) {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()
	conn, ok := cm.connections[playerID]
	return conn, ok
}

// IsConnected reports whether the player has a handle that belongs to roomID.
func (cm *ConnectionManager) IsConnected(roomID, playerID string) bool {
	conn, ok := cm.Get(playerID)
	return ok && conn.RoomID() == roomID
}

// Count returns the number of registered handles.
func (cm *ConnectionManager) Count() int {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()
	return len(cm.connections)
}

// SendTo delivers msg to one player. A failed send disconnects the player.
func (cm *ConnectionManager) SendTo(ctx context.Context, playerID string, msg *messages.Message) error {
	conn, ok := cm.Get(playerID)
	if !ok {
		return ErrNotConnected
	}
	return cm.send(ctx, conn, msg)
}

func (cm *ConnectionManager) send(ctx context.Context, conn Connection, msg *messages.Message) error {
	if err := conn.Send(ctx, msg); err != nil {
		log.Warn("Failed to send %s to player %s: %v", msg.Type, conn.PlayerID(), err)
		cm.Disconnect(conn)
		return fmt.Errorf("failed to send %s to player %s: %v", msg.Type, conn.PlayerID(), err)
	}
	return nil
}

// Broadcast sends msg concurrently to every player in playerIDs that is
// connected to roomID, except exclude. It waits for all sends and returns the
// number of successful deliveries; failures only affect their recipient.
func (cm *ConnectionManager) Broadcast(ctx context.Context, roomID string, playerIDs []string, msg *messages.Message, exclude string) int {
	targets := make([]Connection, 0, len(playerIDs))
	for _, playerID := range playerIDs {
		if playerID == exclude {
			continue
		}
		conn, ok := cm.Get(playerID)
		if !ok || conn.RoomID() != roomID {
			continue
		}
		targets = append(targets, conn)
	}

	delivered := make([]bool, len(targets))
	g := &errgroup.Group{}
	for i, conn := range targets {
		i, conn := i, conn
		g.Go(func() error {
			// a failure stays with its recipient
			delivered[i] = cm.send(ctx, conn, msg) == nil
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range delivered {
		if ok {
			count++
		}
	}
	return count
}
