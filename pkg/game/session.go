package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cbodonnell/scribble/pkg/game/constants"
	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/words"
)

// SystemCallerID identifies actions triggered by the server itself.
const SystemCallerID = "system"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found in room")
	ErrRoomFull       = errors.New("room is full")
	ErrInvalidName    = errors.New("player name must be between 1 and 16 characters")
)

// Session is one room. All exported methods are safe for concurrent use.
type Session struct {
	lock sync.Mutex

	id              string
	players         map[string]*types.Player
	order           []string
	hostID          string
	started         bool
	phase           types.Phase
	roundNumber     int
	totalRounds     int
	category        string
	currentDrawerID string
	secretWord      string
	hint            string
	deadline        time.Time
	strokes         []types.Stroke
	usedWords       []string
	wordChoices     []string
	lastActive      time.Time
	closed          bool

	// roundToken changes whenever a round starts or ends; deferred actions
	// carry the token they were armed with and no-op on mismatch.
	roundToken   uint64
	drawTimer    roundTimer
	advanceTimer roundTimer

	connections *network.ConnectionManager
	pool        *words.Pool
	archive     queue.Queue
	isLive      func(s *Session) bool
	onEmpty     func(s *Session)

	drawDuration time.Duration
	advanceDelay time.Duration
	choiceCount  int
	maxPlayers   int
	now          func() time.Time
}

type NewSessionOptions struct {
	ID          string
	HostID      string
	HostName    string
	TotalRounds int
	Category    string

	Connections *network.ConnectionManager
	Pool        *words.Pool
	// Archive receives finished rounds and games; nil disables archiving.
	Archive queue.Queue
	// IsLive reports whether the session is still registered. Deferred
	// actions consult it before touching the session.
	IsLive func(s *Session) bool
	// OnEmpty is called, with the session locked, once no player is connected.
	OnEmpty func(s *Session)

	DrawDuration time.Duration
	AdvanceDelay time.Duration
	WordChoices  int
	MaxPlayers   int
	Now          func() time.Time
}

// NewSession creates a session in the lobby with the host as its only player.
func NewSession(opts NewSessionOptions) *Session {
	s := &Session{
		id:           opts.ID,
		players:      make(map[string]*types.Player),
		hostID:       opts.HostID,
		phase:        types.PhaseLobby,
		totalRounds:  opts.TotalRounds,
		category:     opts.Category,
		connections:  opts.Connections,
		pool:         opts.Pool,
		archive:      opts.Archive,
		isLive:       opts.IsLive,
		onEmpty:      opts.OnEmpty,
		drawDuration: opts.DrawDuration,
		advanceDelay: opts.AdvanceDelay,
		choiceCount:  opts.WordChoices,
		maxPlayers:   opts.MaxPlayers,
		now:          opts.Now,
	}
	if s.drawDuration <= 0 {
		s.drawDuration = constants.DrawDuration
	}
	if s.advanceDelay <= 0 {
		s.advanceDelay = constants.AdvanceDelay
	}
	if s.choiceCount <= 0 {
		s.choiceCount = constants.WordChoices
	}
	if s.maxPlayers <= 0 {
		s.maxPlayers = constants.MaxPlayers
	}
	if s.totalRounds <= 0 {
		s.totalRounds = constants.DefaultTotalRounds
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.isLive == nil {
		s.isLive = func(*Session) bool { return true }
	}
	if s.onEmpty == nil {
		s.onEmpty = func(*Session) {}
	}
	if s.pool != nil {
		s.category = s.pool.Normalize(s.category)
	}

	s.addPlayerLocked(opts.HostID, opts.HostName)
	s.lastActive = s.now()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// AddPlayer adds a new player to the session.
func (s *Session) AddPlayer(playerID, name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrRoomNotFound
	}
	if _, ok := s.players[playerID]; ok {
		return nil
	}
	if len(s.players) >= s.maxPlayers {
		return ErrRoomFull
	}
	s.addPlayerLocked(playerID, name)
	s.lastActive = s.now()
	return nil
}

func (s *Session) addPlayerLocked(playerID, name string) {
	s.players[playerID] = &types.Player{
		ID:   playerID,
		Name: name,
	}
	s.order = append(s.order, playerID)
}

func (s *Session) hasPlayer(playerID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.players[playerID]
	return ok
}

// Snapshot returns the full, unredacted state.
func (s *Session) Snapshot() *types.Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snapshotLocked()
}

// SnapshotFor returns the state as the given player would receive it.
func (s *Session) SnapshotFor(playerID string) *types.Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snapshotForLocked(playerID)
}

func (s *Session) snapshotLocked() *types.Snapshot {
	players := make(map[string]*types.Player, len(s.players))
	active := make(map[string]bool, len(s.players))
	for id, p := range s.players {
		players[id] = p.Copy()
		active[id] = s.connections.IsConnected(s.id, id)
	}

	snapshot := &types.Snapshot{
		ID:                s.id,
		Phase:             s.phase,
		Players:           players,
		PlayerOrder:       append([]string(nil), s.order...),
		HostID:            s.hostID,
		IsGameStarted:     s.started,
		GuessedWordHint:   s.hint,
		RoundNumber:       s.roundNumber,
		TotalRounds:       s.totalRounds,
		WordCategory:      s.category,
		DrawingStrokes:    types.CopyStrokes(s.strokes),
		UsedWords:         append([]string{}, s.usedWords...),
		ActiveConnections: active,
	}
	if s.currentDrawerID != "" {
		drawer := s.currentDrawerID
		snapshot.CurrentDrawerID = &drawer
	}
	if s.secretWord != "" {
		word := s.secretWord
		snapshot.SecretWord = &word
	}
	if !s.deadline.IsZero() {
		expiresAt := float64(s.deadline.UnixMilli()) / 1000
		snapshot.TimerExpiresAt = &expiresAt
	}
	return snapshot
}

func (s *Session) snapshotForLocked(playerID string) *types.Snapshot {
	snapshot := s.snapshotLocked()
	if playerID != s.currentDrawerID {
		return snapshot.Redacted()
	}
	return snapshot
}

// publishSnapshotLocked sends GAME_STATE_UPDATE to target, or to every
// connected player when target is empty. Only the drawer sees the word.
func (s *Session) publishSnapshotLocked(ctx context.Context, target string) {
	snapshot := s.snapshotLocked()

	if target != "" {
		if target != s.currentDrawerID {
			snapshot = snapshot.Redacted()
		}
		s.sendLocked(ctx, target, messages.MessageTypeServerGameStateUpdate, snapshot)
		return
	}

	if snapshot.SecretWord == nil {
		s.broadcastLocked(ctx, messages.MessageTypeServerGameStateUpdate, snapshot, "")
		return
	}
	s.sendLocked(ctx, s.currentDrawerID, messages.MessageTypeServerGameStateUpdate, snapshot)
	s.broadcastLocked(ctx, messages.MessageTypeServerGameStateUpdate, snapshot.Redacted(), s.currentDrawerID)
}

// PublishSnapshot sends the current state to one player, or to all when
// target is empty.
func (s *Session) PublishSnapshot(ctx context.Context, target string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.publishSnapshotLocked(ctx, target)
}

func (s *Session) sendLocked(ctx context.Context, playerID, messageType string, payload interface{}) {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		log.Error("Failed to build %s for room %s: %v", messageType, s.id, err)
		return
	}
	if err := s.connections.SendTo(ctx, playerID, msg); err != nil && !errors.Is(err, network.ErrNotConnected) {
		log.Debug("Failed to deliver %s to player %s in room %s: %v", messageType, playerID, s.id, err)
	}
}

func (s *Session) broadcastLocked(ctx context.Context, messageType string, payload interface{}, exclude string) {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		log.Error("Failed to build %s for room %s: %v", messageType, s.id, err)
		return
	}
	delivered := s.connections.Broadcast(ctx, s.id, s.order, msg, exclude)
	log.Trace("Broadcast %s to %d players in room %s", messageType, delivered, s.id)
}

func (s *Session) sendErrorLocked(ctx context.Context, playerID, text string) {
	s.sendLocked(ctx, playerID, messages.MessageTypeServerError, messages.ErrorMessage{Message: text})
}

func (s *Session) chatLocked(ctx context.Context, sender, text string, isCorrectGuess bool) {
	s.broadcastLocked(ctx, messages.MessageTypeServerChatMessage, messages.ChatMessage{
		Sender:         sender,
		Message:        text,
		IsCorrectGuess: isCorrectGuess,
	}, "")
}

func (s *Session) systemChatLocked(ctx context.Context, text string) {
	s.chatLocked(ctx, messages.SystemSender, text, false)
}

// AddConnection registers conn for its player and resynchronises the room.
func (s *Session) AddConnection(ctx context.Context, conn network.Connection) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrRoomNotFound
	}
	playerID := conn.PlayerID()
	if _, ok := s.players[playerID]; !ok {
		return ErrPlayerNotFound
	}

	if previous := s.connections.Register(conn); previous != nil {
		log.Info("Player %s reconnected to room %s", playerID, s.id)
		previous.Close("replaced by a new connection")
	}
	s.lastActive = s.now()

	s.publishSnapshotLocked(ctx, "")
	if playerID == s.currentDrawerID && s.phase == types.PhaseRoundWordSelect {
		s.sendLocked(ctx, playerID, messages.MessageTypeServerWordToDraw, messages.WordToDraw{
			Words:           append([]string(nil), s.wordChoices...),
			CurrentDrawerID: playerID,
		})
	}
	return nil
}

// RemoveConnection handles the loss of conn. It is a no-op when the player
// has since reconnected with a different handle.
func (s *Session) RemoveConnection(ctx context.Context, conn network.Connection) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.connections.Release(conn)
	if s.closed {
		return
	}
	playerID := conn.PlayerID()
	player, ok := s.players[playerID]
	if !ok || s.connections.IsConnected(s.id, playerID) {
		return
	}
	s.lastActive = s.now()
	log.Info("Player %s (%s) left room %s", playerID, player.Name, s.id)

	if !s.anyConnectedLocked() {
		log.Info("Room %s has no connected players, closing", s.id)
		s.closeLocked()
		s.onEmpty(s)
		return
	}

	if playerID == s.hostID {
		s.promoteHostLocked(ctx)
	}

	if s.started && playerID == s.currentDrawerID &&
		(s.phase == types.PhaseRoundWordSelect || s.phase == types.PhaseRoundDrawing) {
		s.endRoundLocked(ctx, RoundEndDrawerDisconnected)
		return
	}

	s.publishSnapshotLocked(ctx, "")
}

// promoteHostLocked hands the host role to the next connected player in join order.
func (s *Session) promoteHostLocked(ctx context.Context) {
	start := indexOf(s.order, s.hostID)
	for i := 1; i <= len(s.order); i++ {
		candidate := s.order[(start+i)%len(s.order)]
		if candidate == s.hostID || !s.connections.IsConnected(s.id, candidate) {
			continue
		}
		s.hostID = candidate
		log.Info("Player %s is now the host of room %s", candidate, s.id)
		s.systemChatLocked(ctx, s.players[candidate].Name+" is now the host.")
		return
	}
}

func (s *Session) anyConnectedLocked() bool {
	for _, id := range s.order {
		if s.connections.IsConnected(s.id, id) {
			return true
		}
	}
	return false
}

func (s *Session) connectedCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, id := range s.order {
		if s.connections.IsConnected(s.id, id) {
			n++
		}
	}
	return n
}

// IdleSince reports when the session last saw a player join or leave, and
// whether anyone is connected now.
func (s *Session) IdleSince() (time.Time, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastActive, s.anyConnectedLocked()
}

// Close cancels pending timers and closes the players' connections. Later
// operations are no-ops.
func (s *Session) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	s.closed = true
	s.roundToken++
	s.drawTimer.Cancel()
	s.advanceTimer.Cancel()

	for _, id := range s.order {
		conn, ok := s.connections.Get(id)
		if !ok || conn.RoomID() != s.id {
			continue
		}
		s.connections.Unregister(id)
		conn.Close("room closed")
	}
}

// Closed reports whether the session has been shut down.
func (s *Session) Closed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// Handle dispatches one inbound event from playerID.
func (s *Session) Handle(ctx context.Context, playerID string, event messages.ClientEvent) {
	switch e := event.(type) {
	case messages.Guess:
		s.HandleGuess(ctx, playerID, e.Message)
	case messages.DrawingData:
		s.HandleDrawingData(ctx, playerID, e.Point)
	case messages.StartGame:
		s.StartGame(ctx, playerID)
	case messages.NextRound:
		s.StartNewRound(ctx, playerID)
	case messages.ChooseWord:
		s.ChooseWord(ctx, playerID, e.Word)
	default:
		log.Warn("Unhandled event %T from player %s in room %s", event, playerID, s.id)
	}
}

func indexOf(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return -1
}
