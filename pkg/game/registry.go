package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cbodonnell/scribble/pkg/game/constants"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/words"
	"github.com/google/uuid"
)

// Registry owns the live sessions of the process.
type Registry struct {
	sessions     map[string]*Session
	sessionsLock sync.RWMutex

	connections *network.ConnectionManager
	pool        *words.Pool
	archive     queue.Queue

	drawDuration  time.Duration
	advanceDelay  time.Duration
	wordChoices   int
	defaultRounds int
	maxRounds     int
	maxPlayers    int
	now           func() time.Time
	newRoomID     func() string
	newPlayerID   func() string
}

type NewRegistryOptions struct {
	Connections *network.ConnectionManager
	Pool        *words.Pool
	Archive     queue.Queue

	DrawDuration  time.Duration
	AdvanceDelay  time.Duration
	WordChoices   int
	DefaultRounds int
	MaxRounds     int
	MaxPlayers    int
	Now           func() time.Time
	// RoomIDGenerator and PlayerIDGenerator override the random generators.
	RoomIDGenerator   func() string
	PlayerIDGenerator func() string
}

// NewRegistry creates a Registry and installs its disconnect handler on the
// connection manager.
func NewRegistry(opts NewRegistryOptions) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		connections:   opts.Connections,
		pool:          opts.Pool,
		archive:       opts.Archive,
		drawDuration:  opts.DrawDuration,
		advanceDelay:  opts.AdvanceDelay,
		wordChoices:   opts.WordChoices,
		defaultRounds: opts.DefaultRounds,
		maxRounds:     opts.MaxRounds,
		maxPlayers:    opts.MaxPlayers,
		now:           opts.Now,
		newRoomID:     opts.RoomIDGenerator,
		newPlayerID:   opts.PlayerIDGenerator,
	}
	if r.pool == nil {
		r.pool = words.NewPool(words.NewPoolOptions{})
	}
	if r.defaultRounds <= 0 {
		r.defaultRounds = constants.DefaultTotalRounds
	}
	if r.maxRounds <= 0 {
		r.maxRounds = constants.MaxTotalRounds
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newRoomID == nil {
		r.newRoomID = randomRoomID
	}
	if r.newPlayerID == nil {
		r.newPlayerID = uuid.NewString
	}
	r.connections.SetDisconnectHandler(r.handleDisconnect)
	return r
}

// Create builds a session with hostID as its only player and stores it
// under a fresh room ID.
func (r *Registry) Create(hostID, hostName string, totalRounds int, category string) (*Session, error) {
	r.sessionsLock.Lock()
	defer r.sessionsLock.Unlock()

	roomID, err := r.generateUniqueID(constants.RoomIDMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to generate a room ID: %v", err)
	}

	s := NewSession(NewSessionOptions{
		ID:           roomID,
		HostID:       hostID,
		HostName:     hostName,
		TotalRounds:  r.clampRounds(totalRounds),
		Category:     category,
		Connections:  r.connections,
		Pool:         r.pool,
		Archive:      r.archive,
		IsLive:       r.isLive,
		OnEmpty:      r.remove,
		DrawDuration: r.drawDuration,
		AdvanceDelay: r.advanceDelay,
		WordChoices:  r.wordChoices,
		MaxPlayers:   r.maxPlayers,
		Now:          r.now,
	})
	r.sessions[roomID] = s
	log.Info("Created room %s for host %s", roomID, hostID)
	return s, nil
}

// CreateRoom validates the host name, assigns a player ID and creates a session.
func (r *Registry) CreateRoom(hostName string, totalRounds int, category string) (*Session, string, error) {
	name, err := normalizeName(hostName)
	if err != nil {
		return nil, "", err
	}
	hostID := r.newPlayerID()
	s, err := r.Create(hostID, name, totalRounds, category)
	if err != nil {
		return nil, "", err
	}
	return s, hostID, nil
}

// JoinRoom adds a new player to an existing room.
func (r *Registry) JoinRoom(roomID, playerName string) (string, *Session, error) {
	name, err := normalizeName(playerName)
	if err != nil {
		return "", nil, err
	}
	s, ok := r.Lookup(roomID)
	if !ok {
		return "", nil, ErrRoomNotFound
	}
	playerID := r.newPlayerID()
	if err := s.AddPlayer(playerID, name); err != nil {
		return "", nil, err
	}
	log.Info("Player %s joined room %s", playerID, s.ID())
	return playerID, s, nil
}

// Lookup finds a live session. Room IDs are case-insensitive.
func (r *Registry) Lookup(roomID string) (*Session, bool) {
	r.sessionsLock.RLock()
	defer r.sessionsLock.RUnlock()
	s, ok := r.sessions[NormalizeRoomID(roomID)]
	return s, ok
}

// Destroy removes a session and cancels its timers.
func (r *Registry) Destroy(roomID string) {
	r.sessionsLock.Lock()
	s, ok := r.sessions[NormalizeRoomID(roomID)]
	if ok {
		delete(r.sessions, s.ID())
	}
	r.sessionsLock.Unlock()

	if ok {
		s.Close()
		log.Info("Destroyed room %s", s.ID())
	}
}

// remove drops s from the map without touching its lock.
func (r *Registry) remove(s *Session) {
	r.sessionsLock.Lock()
	defer r.sessionsLock.Unlock()
	if current, ok := r.sessions[s.ID()]; ok && current == s {
		delete(r.sessions, s.ID())
		log.Info("Destroyed room %s", s.ID())
	}
}

func (r *Registry) isLive(s *Session) bool {
	current, ok := r.Lookup(s.ID())
	return ok && current == s && !s.Closed()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.sessionsLock.RLock()
	defer r.sessionsLock.RUnlock()
	return len(r.sessions)
}

// ReapIdle destroys sessions nobody has been connected to for maxIdle.
// It returns the number of sessions destroyed.
func (r *Registry) ReapIdle(maxIdle time.Duration) int {
	r.sessionsLock.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessionsLock.RUnlock()

	reaped := 0
	now := r.now()
	for _, s := range sessions {
		lastActive, connected := s.IdleSince()
		if connected || now.Sub(lastActive) < maxIdle {
			continue
		}
		r.Destroy(s.ID())
		reaped++
	}
	return reaped
}

// Close destroys every session.
func (r *Registry) Close() {
	r.sessionsLock.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.sessionsLock.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Attach implements network.EventHandler.
func (r *Registry) Attach(ctx context.Context, conn network.Connection) error {
	s, ok := r.Lookup(conn.RoomID())
	if !ok {
		return ErrRoomNotFound
	}
	return s.AddConnection(ctx, conn)
}

// HandleEvent implements network.EventHandler. Events for unknown rooms, or
// from a handle that is no longer the player's registered one, are dropped.
func (r *Registry) HandleEvent(ctx context.Context, conn network.Connection, event messages.ClientEvent) {
	if current, ok := r.connections.Get(conn.PlayerID()); !ok || current != conn {
		log.Debug("Dropping %s from released connection of player %s", event.MessageType(), conn.PlayerID())
		return
	}
	s, ok := r.Lookup(conn.RoomID())
	if !ok {
		log.Debug("Dropping %s for unknown room %s", event.MessageType(), conn.RoomID())
		return
	}
	s.Handle(ctx, conn.PlayerID(), event)
}

func (r *Registry) handleDisconnect(conn network.Connection) {
	s, ok := r.Lookup(conn.RoomID())
	if !ok {
		return
	}
	s.RemoveConnection(context.Background(), conn)
}

func (r *Registry) clampRounds(totalRounds int) int {
	if totalRounds <= 0 {
		return r.defaultRounds
	}
	if totalRounds > r.maxRounds {
		return r.maxRounds
	}
	return totalRounds
}

// generateUniqueID generates a unique room ID with a maximum number of retries
// it reads from the sessions, so it needs to be locked before calling
func (r *Registry) generateUniqueID(maxRetries int) (string, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := r.newRoomID()
		if _, ok := r.sessions[id]; !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}

func randomRoomID() string {
	b := make([]byte, constants.RoomIDLength)
	for i := range b {
		b[i] = constants.RoomIDAlphabet[rand.Intn(len(constants.RoomIDAlphabet))]
	}
	return string(b)
}

// NormalizeRoomID canonicalises a client-supplied room ID.
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > constants.MaxPlayerNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
