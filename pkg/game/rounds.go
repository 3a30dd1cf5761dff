package game

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cbodonnell/scribble/pkg/game/constants"
	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
)

// RoundEndReason says why a round finished.
type RoundEndReason string

const (
	RoundEndGuess              RoundEndReason = models.RoundEndReasonGuess
	RoundEndTimeUp             RoundEndReason = models.RoundEndReasonTimeUp
	RoundEndDrawerDisconnected RoundEndReason = models.RoundEndReasonDrawerDisconnected
)

// HintMask replaces every character of the secret word in the hint.
const HintMask = "_"

// StartGame begins a game. Only the host may start, and only with at least
// two players.
func (s *Session) StartGame(ctx context.Context, callerID string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.players[callerID]; !ok {
		return
	}
	if callerID != s.hostID {
		s.sendErrorLocked(ctx, callerID, "Only the host can start the game.")
		return
	}
	if len(s.players) < 2 {
		s.sendErrorLocked(ctx, callerID, "Need at least 2 players to start.")
		return
	}
	if s.started {
		s.sendErrorLocked(ctx, callerID, "The game has already started.")
		return
	}

	s.drawTimer.Cancel()
	s.advanceTimer.Cancel()

	s.started = true
	s.roundNumber = 0
	s.usedWords = nil
	s.strokes = nil
	for _, p := range s.players {
		p.Score = 0
		p.HasGuessed = false
	}
	log.Info("Game started in room %s with %d players", s.id, len(s.players))

	s.systemChatLocked(ctx, "The game has started!")
	s.publishSnapshotLocked(ctx, "")
	s.startNewRoundLocked(ctx)
}

// StartNewRound advances to the next round. Players other than the host may
// not call it; SystemCallerID always may.
func (s *Session) StartNewRound(ctx context.Context, callerID string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	if callerID != SystemCallerID {
		if _, ok := s.players[callerID]; !ok {
			return
		}
		if callerID != s.hostID {
			s.sendErrorLocked(ctx, callerID, "Only the host can start new rounds.")
			return
		}
	}
	s.startNewRoundLocked(ctx)
}

func (s *Session) startNewRoundLocked(ctx context.Context) {
	if !s.started {
		return
	}

	s.drawTimer.Cancel()
	s.advanceTimer.Cancel()

	s.roundNumber++
	if s.roundNumber > s.totalRounds {
		s.endGameLocked(ctx)
		return
	}

	s.currentDrawerID = s.nextDrawerLocked()
	s.secretWord = ""
	s.hint = ""
	s.strokes = nil
	s.deadline = time.Time{}
	for _, p := range s.players {
		p.HasGuessed = false
	}
	s.roundToken++
	s.phase = types.PhaseRoundWordSelect

	choices, replenished := s.pool.Draw(s.category, s.usedWords, s.choiceCount)
	if replenished {
		log.Debug("Word pool for %s exhausted in room %s, replenishing", s.category, s.id)
		s.usedWords = nil
	}
	s.wordChoices = choices

	drawer := s.players[s.currentDrawerID]
	log.Info("Room %s round %d/%d, drawer %s", s.id, s.roundNumber, s.totalRounds, drawer.ID)
	s.systemChatLocked(ctx, fmt.Sprintf("Starting Round %d!", s.roundNumber))

	if !s.connections.IsConnected(s.id, drawer.ID) {
		s.systemChatLocked(ctx, fmt.Sprintf("Drawer %s is not connected, skipping turn.", drawer.Name))
		token := s.roundToken
		go s.endRoundIfCurrent(token, RoundEndDrawerDisconnected)
		return
	}

	s.sendLocked(ctx, drawer.ID, messages.MessageTypeServerWordToDraw, messages.WordToDraw{
		Words:           append([]string(nil), choices...),
		CurrentDrawerID: drawer.ID,
	})
	s.publishSnapshotLocked(ctx, "")
}

// nextDrawerLocked rotates through the join order starting after the
// previous drawer.
func (s *Session) nextDrawerLocked() string {
	previous := indexOf(s.order, s.currentDrawerID)
	if previous < 0 {
		return s.order[0]
	}
	return s.order[(previous+1)%len(s.order)]
}

// ChooseWord sets the secret word for the round. Only the current drawer may
// choose, once per round.
func (s *Session) ChooseWord(ctx context.Context, playerID, word string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	player, ok := s.players[playerID]
	if !ok {
		return
	}
	if playerID != s.currentDrawerID {
		s.sendErrorLocked(ctx, playerID, "You are not the current drawer.")
		return
	}
	if s.secretWord != "" {
		s.sendErrorLocked(ctx, playerID, "Word already chosen for this round.")
		return
	}
	if s.phase != types.PhaseRoundWordSelect {
		s.sendErrorLocked(ctx, playerID, "You cannot choose a word right now.")
		return
	}
	word = strings.TrimSpace(word)
	if word == "" {
		s.sendErrorLocked(ctx, playerID, "Word cannot be empty.")
		return
	}

	s.secretWord = word
	s.usedWords = append(s.usedWords, word)
	s.hint = strings.Repeat(HintMask, utf8.RuneCountInString(word))
	s.deadline = s.now().Add(s.drawDuration)
	s.phase = types.PhaseRoundDrawing

	token := s.roundToken
	s.drawTimer.Schedule(s.drawDuration, func() {
		s.endRoundIfCurrent(token, RoundEndTimeUp)
	})

	s.systemChatLocked(ctx, fmt.Sprintf("%s has chosen a word!", player.Name))
	s.publishSnapshotLocked(ctx, "")
}

// HandleDrawingData records a point from the drawer and relays it to everyone else.
func (s *Session) HandleDrawingData(ctx context.Context, playerID string, point types.StrokePoint) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.players[playerID]; !ok {
		return
	}
	if playerID != s.currentDrawerID {
		s.sendErrorLocked(ctx, playerID, "You are not the current drawer.")
		return
	}
	if err := point.Validate(); err != nil {
		log.Debug("Dropping stroke point from player %s in room %s: %v", playerID, s.id, err)
		return
	}

	if point.Action == types.StrokeActionClear {
		s.strokes = nil
	} else {
		if point.Action == types.StrokeActionStart || len(s.strokes) == 0 {
			s.strokes = append(s.strokes, types.Stroke{})
		}
		last := len(s.strokes) - 1
		s.strokes[last] = append(s.strokes[last], point)
	}

	s.broadcastLocked(ctx, messages.MessageTypeServerDrawingUpdate, point, playerID)
}

// HandleGuess scores a correct guess or relays the text as chat.
func (s *Session) HandleGuess(ctx context.Context, playerID, text string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	player, ok := s.players[playerID]
	if !ok {
		return
	}

	text = truncate(strings.TrimSpace(text), constants.MaxChatLength)

	if playerID == s.currentDrawerID || s.secretWord == "" || player.HasGuessed ||
		!strings.EqualFold(text, strings.TrimSpace(s.secretWord)) {
		s.chatLocked(ctx, player.Name, text, false)
		return
	}

	player.HasGuessed = true
	player.Score += constants.GuesserPoints
	if drawer, ok := s.players[s.currentDrawerID]; ok {
		drawer.Score += constants.DrawerPoints
	}
	log.Info("Player %s guessed the word in room %s round %d", playerID, s.id, s.roundNumber)

	s.chatLocked(ctx, messages.SystemSender, fmt.Sprintf("🎉 %s guessed the word: %s!", player.Name, s.secretWord), true)
	s.endRoundLocked(ctx, RoundEndGuess)
}

// endRoundIfCurrent is the entry point for deferred round ends. It does
// nothing if the round it was armed for is already over.
func (s *Session) endRoundIfCurrent(token uint64, reason RoundEndReason) {
	if !s.isLive(s) {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed || !s.started || token != s.roundToken {
		return
	}
	if reason == RoundEndTimeUp && s.secretWord == "" {
		return
	}
	s.endRoundLocked(context.Background(), reason)
}

func (s *Session) endRoundLocked(ctx context.Context, reason RoundEndReason) {
	s.drawTimer.Cancel()
	s.roundToken++
	s.deadline = time.Time{}

	word := s.secretWord
	switch {
	case reason == RoundEndTimeUp && word != "":
		s.systemChatLocked(ctx, fmt.Sprintf("Time's up! The word was '%s'.", word))
	case reason == RoundEndTimeUp:
		s.systemChatLocked(ctx, "Time's up! No word was chosen this round.")
	case reason == RoundEndDrawerDisconnected:
		s.systemChatLocked(ctx, "Drawer disconnected. Round ended.")
	}
	log.Info("Room %s round %d ended: %s", s.id, s.roundNumber, reason)

	if word != "" {
		s.archiveRoundLocked(word, reason)
	}

	s.secretWord = ""
	s.hint = ""
	s.strokes = nil
	s.wordChoices = nil
	for _, p := range s.players {
		p.HasGuessed = false
	}
	s.phase = types.PhaseRoundEnd

	s.publishSnapshotLocked(ctx, "")

	if s.roundNumber >= s.totalRounds {
		s.endGameLocked(ctx)
		return
	}

	token := s.roundToken
	s.advanceTimer.Schedule(s.advanceDelay, func() {
		s.advanceIfCurrent(token)
	})
}

// advanceIfCurrent starts the next round unless something already moved the
// session on since the round ended.
func (s *Session) advanceIfCurrent(token uint64) {
	if !s.isLive(s) {
		log.Debug("Room %s no longer exists, skipping round advance", s.id)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed || token != s.roundToken {
		return
	}
	s.startNewRoundLocked(context.Background())
}

func (s *Session) endGameLocked(ctx context.Context) {
	s.drawTimer.Cancel()
	s.advanceTimer.Cancel()
	s.roundToken++

	rounds := s.roundNumber
	if rounds > s.totalRounds {
		rounds = s.totalRounds
	}

	s.started = false
	s.currentDrawerID = ""
	s.secretWord = ""
	s.hint = ""
	s.deadline = time.Time{}
	s.strokes = nil
	s.wordChoices = nil
	s.roundNumber = 0
	for _, p := range s.players {
		p.HasGuessed = false
	}
	s.phase = types.PhaseGameOver

	winner, highScore := s.winnerLocked()
	finalScores := make(map[string]int, len(s.players))
	for id, p := range s.players {
		finalScores[id] = p.Score
	}

	gameOver := messages.GameOver{FinalScores: finalScores}
	if winner != nil {
		winnerID, winnerName := winner.ID, winner.Name
		gameOver.WinnerID = &winnerID
		gameOver.WinnerName = &winnerName
		s.chatLocked(ctx, messages.SystemSender, fmt.Sprintf("GAME OVER! %s wins with %d points!", winner.Name, highScore), true)
	} else {
		s.chatLocked(ctx, messages.SystemSender, fmt.Sprintf("GAME OVER! It's a tie with %d points!", highScore), true)
	}
	log.Info("Game over in room %s after %d rounds", s.id, rounds)

	s.broadcastLocked(ctx, messages.MessageTypeServerGameOver, gameOver, "")
	s.publishSnapshotLocked(ctx, "")

	s.archiveGameLocked(winner, highScore, rounds)
}

// winnerLocked returns the unique top scorer, or nil on a tie.
func (s *Session) winnerLocked() (*types.Player, int) {
	var winner *types.Player
	highScore := 0
	tied := false
	for i, id := range s.order {
		p := s.players[id]
		switch {
		case i == 0 || p.Score > highScore:
			winner = p
			highScore = p.Score
			tied = false
		case p.Score == highScore:
			tied = true
		}
	}
	if tied {
		return nil, highScore
	}
	return winner, highScore
}

func (s *Session) archiveRoundLocked(word string, reason RoundEndReason) {
	if s.archive == nil {
		return
	}
	record := &models.RoundRecord{
		RoomID:      s.id,
		RoundNumber: s.roundNumber,
		DrawerID:    s.currentDrawerID,
		Word:        word,
		Reason:      string(reason),
		Strokes:     types.CopyStrokes(s.strokes),
		EndedAt:     s.now(),
	}
	if drawer, ok := s.players[s.currentDrawerID]; ok {
		record.DrawerName = drawer.Name
	}
	if err := s.archive.Enqueue(record); err != nil {
		log.Warn("Failed to archive round %d of room %s: %v", s.roundNumber, s.id, err)
	}
}

func (s *Session) archiveGameLocked(winner *types.Player, highScore, rounds int) {
	if s.archive == nil {
		return
	}
	result := &models.GameResult{
		RoomID:      s.id,
		Category:    s.category,
		TotalRounds: rounds,
		HighScore:   highScore,
		EndedAt:     s.now(),
	}
	if winner != nil {
		winnerID, winnerName := winner.ID, winner.Name
		result.WinnerID = &winnerID
		result.WinnerName = &winnerName
	}
	for _, id := range s.order {
		p := s.players[id]
		result.Scores = append(result.Scores, models.PlayerScore{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}
	if err := s.archive.Enqueue(result); err != nil {
		log.Warn("Failed to archive game result of room %s: %v", s.id, err)
	}
}

func truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes])
}
