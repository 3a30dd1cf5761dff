package game

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/scribble/pkg/game/constants"
	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartGame(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		players   []string
		caller    int
		wantError string
	}{
		{
			name:      "single player",
			players:   []string{"H"},
			caller:    0,
			wantError: "Need at least 2 players to start.",
		},
		{
			name:      "not the host",
			players:   []string{"H", "X"},
			caller:    1,
			wantError: "Only the host can start the game.",
		},
		{
			name:    "host with two players",
			players: []string{"H", "X"},
			caller:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _ := newTestRegistry(t, testOptions{})
			room := newTestRoom(t, registry, 3, "animals", tt.players...)

			room.session.StartGame(ctx, room.ids[tt.caller])

			snapshot := room.session.Snapshot()
			if tt.wantError != "" {
				assert.Equal(t, []string{tt.wantError}, room.conns[tt.caller].errors(t))
				assert.False(t, snapshot.IsGameStarted)
				assert.Equal(t, types.PhaseLobby, snapshot.Phase)
				return
			}
			assert.Empty(t, room.conns[tt.caller].errors(t))
			assert.True(t, snapshot.IsGameStarted)
			assert.Equal(t, 1, snapshot.RoundNumber)
			assert.Equal(t, types.PhaseRoundWordSelect, snapshot.Phase)
			require.NotNil(t, snapshot.CurrentDrawerID)
			assert.Equal(t, room.ids[0], *snapshot.CurrentDrawerID)
			assert.True(t, room.conns[1].hasChat(t, "The game has started!"))
			assert.True(t, room.conns[1].hasChat(t, "Starting Round 1!"))
		})
	}
}

func TestStartGameTwice(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")

	room.session.StartGame(ctx, room.ids[0])
	room.session.StartGame(ctx, room.ids[0])

	assert.Equal(t, []string{"The game has already started."}, room.conns[0].errors(t))
	assert.Equal(t, 1, room.session.Snapshot().RoundNumber)
}

func TestDrawerRotation(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 5, "animals", "A", "B", "C")
	host := room.ids[0]

	room.session.StartGame(ctx, host)
	drawers := []string{room.drawerID()}
	for i := 0; i < 3; i++ {
		room.session.StartNewRound(ctx, host)
		drawers = append(drawers, room.drawerID())
	}

	assert.Equal(t, []string{room.ids[0], room.ids[1], room.ids[2], room.ids[0]}, drawers)
}

func TestRoundNumbersAndSingleGameOver(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	host := room.ids[0]

	room.session.StartGame(ctx, host)
	rounds := []int{room.session.Snapshot().RoundNumber}
	for i := 0; i < 2; i++ {
		room.session.StartNewRound(ctx, host)
		rounds = append(rounds, room.session.Snapshot().RoundNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, rounds)
	assert.Empty(t, room.conns[1].gameOvers(t))

	// past the last round the game ends exactly once
	room.session.StartNewRound(ctx, host)
	room.session.StartNewRound(ctx, host)

	assert.Len(t, room.conns[0].gameOvers(t), 1)
	assert.Len(t, room.conns[1].gameOvers(t), 1)

	snapshot := room.session.Snapshot()
	assert.False(t, snapshot.IsGameStarted)
	assert.Equal(t, types.PhaseGameOver, snapshot.Phase)
	assert.Equal(t, 0, snapshot.RoundNumber)
	assert.Nil(t, snapshot.CurrentDrawerID)
}

func TestStartNewRoundRequiresHost(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")

	room.session.StartGame(ctx, room.ids[0])
	room.session.StartNewRound(ctx, room.ids[1])

	assert.Equal(t, []string{"Only the host can start new rounds."}, room.conns[1].errors(t))
	assert.Equal(t, 1, room.session.Snapshot().RoundNumber)

	room.session.StartNewRound(ctx, SystemCallerID)
	assert.Equal(t, 2, room.session.Snapshot().RoundNumber)
}

func TestChooseWord(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer, guesser := room.ids[0], room.ids[1]

	// before the game no one is drawing
	room.session.ChooseWord(ctx, drawer, "lion")
	assert.Equal(t, []string{"You are not the current drawer."}, room.conns[0].errors(t))
	room.conns[0].reset()

	room.session.StartGame(ctx, drawer)

	room.session.ChooseWord(ctx, guesser, "lion")
	assert.Equal(t, []string{"You are not the current drawer."}, room.conns[1].errors(t))
	assert.Nil(t, room.session.Snapshot().SecretWord)

	room.session.ChooseWord(ctx, drawer, "   ")
	assert.Equal(t, []string{"Word cannot be empty."}, room.conns[0].errors(t))

	room.session.ChooseWord(ctx, drawer, "lion")
	snapshot := room.session.Snapshot()
	require.NotNil(t, snapshot.SecretWord)
	assert.Equal(t, "lion", *snapshot.SecretWord)
	assert.Equal(t, "____", snapshot.GuessedWordHint)
	assert.Equal(t, types.PhaseRoundDrawing, snapshot.Phase)
	assert.NotNil(t, snapshot.TimerExpiresAt)
	assert.Contains(t, snapshot.UsedWords, "lion")
	assert.True(t, room.conns[1].hasChat(t, "H has chosen a word!"))

	room.session.ChooseWord(ctx, drawer, "owl")
	assert.Contains(t, room.conns[0].errors(t), "Word already chosen for this round.")
	assert.Equal(t, "lion", *room.session.Snapshot().SecretWord)
}

func TestHintCountsRunes(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")

	room.session.StartGame(ctx, room.ids[0])
	room.session.ChooseWord(ctx, room.ids[0], "ice cream")

	assert.Equal(t, "_________", room.session.Snapshot().GuessedWordHint)
}

func TestWordToDrawOnlyToDrawer(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")

	room.session.StartGame(ctx, room.ids[0])

	choices := room.conns[0].wordsToDraw(t)
	require.Len(t, choices, 1)
	assert.Len(t, choices[0].Words, constants.WordChoices)
	assert.Equal(t, room.ids[0], choices[0].CurrentDrawerID)
	assert.Empty(t, room.conns[1].wordsToDraw(t))
	assert.Empty(t, room.conns[2].wordsToDraw(t))
}

func TestSecretWordNeverSentToGuessers(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	room.session.HandleGuess(ctx, room.ids[1], "tiger")
	room.session.PublishSnapshot(ctx, "")
	room.session.PublishSnapshot(ctx, room.ids[2])

	for _, conn := range room.conns[1:] {
		snapshots := conn.snapshots(t)
		require.NotEmpty(t, snapshots)
		for _, snapshot := range snapshots {
			assert.Nil(t, snapshot.SecretWord)
			assert.NotContains(t, snapshot.UsedWords, "lion")
		}
	}

	last := room.conns[0].lastSnapshot(t)
	require.NotNil(t, last.SecretWord)
	assert.Equal(t, "lion", *last.SecretWord)

	redacted := room.session.SnapshotFor(room.ids[1])
	assert.Nil(t, redacted.SecretWord)
	assert.Equal(t, "____", redacted.GuessedWordHint)
}

func TestHandleGuess(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		guess       string
		wantCorrect bool
	}{
		{name: "exact", guess: "lion", wantCorrect: true},
		{name: "case and whitespace", guess: "  LiOn ", wantCorrect: true},
		{name: "wrong", guess: "tiger"},
		{name: "substring", guess: "lio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _ := newTestRegistry(t, testOptions{})
			room := newTestRoom(t, registry, 3, "animals", "H", "X")
			drawer, guesser := room.ids[0], room.ids[1]

			room.session.StartGame(ctx, drawer)
			room.session.ChooseWord(ctx, drawer, "lion")
			room.conns[0].reset()
			room.session.HandleGuess(ctx, guesser, tt.guess)

			snapshot := room.session.Snapshot()
			chats := room.conns[0].chats(t)
			require.NotEmpty(t, chats)
			if !tt.wantCorrect {
				assert.Equal(t, messages.ChatMessage{Sender: "X", Message: chats[0].Message}, chats[0])
				assert.Equal(t, 0, snapshot.Players[guesser].Score)
				assert.Equal(t, types.PhaseRoundDrawing, snapshot.Phase)
				return
			}
			assert.Equal(t, messages.SystemSender, chats[0].Sender)
			assert.Equal(t, "🎉 X guessed the word: lion!", chats[0].Message)
			assert.True(t, chats[0].IsCorrectGuess)
			assert.Equal(t, constants.GuesserPoints, snapshot.Players[guesser].Score)
			assert.Equal(t, constants.DrawerPoints, snapshot.Players[drawer].Score)
			assert.Equal(t, types.PhaseRoundEnd, snapshot.Phase)
			assert.Nil(t, snapshot.SecretWord)
		})
	}
}

func TestDrawerGuessIsChat(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	room.conns[1].reset()
	room.session.HandleGuess(ctx, drawer, "lion")

	chats := room.conns[1].chats(t)
	require.Len(t, chats, 1)
	assert.Equal(t, messages.ChatMessage{Sender: "H", Message: "lion"}, chats[0])

	snapshot := room.session.Snapshot()
	assert.Equal(t, 0, snapshot.Players[drawer].Score)
	assert.Equal(t, types.PhaseRoundDrawing, snapshot.Phase)
}

func TestGuessBeforeWordChosenIsChat(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")

	room.session.StartGame(ctx, room.ids[0])
	room.session.HandleGuess(ctx, room.ids[1], "hello")

	assert.True(t, room.conns[0].hasChat(t, "hello"))
	assert.Equal(t, 0, room.session.Snapshot().Players[room.ids[1]].Score)
}

func TestHandleDrawingData(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	for _, conn := range room.conns {
		conn.reset()
	}

	points := []types.StrokePoint{
		{X: 1, Y: 1, Color: "#000000", BrushSize: 5, Action: types.StrokeActionStart},
		{X: 2, Y: 3, Color: "#000000", BrushSize: 5, Action: types.StrokeActionDraw},
		{X: 9, Y: 9, Color: "#ff0000", BrushSize: 3, Action: types.StrokeActionStart},
	}
	for _, p := range points {
		room.session.HandleDrawingData(ctx, drawer, p)
	}
	room.session.HandleDrawingData(ctx, room.ids[1], points[0])

	assert.Empty(t, room.conns[0].ofType(messages.MessageTypeServerDrawingUpdate))
	assert.Len(t, room.conns[1].ofType(messages.MessageTypeServerDrawingUpdate), 3)
	assert.Len(t, room.conns[2].ofType(messages.MessageTypeServerDrawingUpdate), 3)
	assert.Equal(t, []string{"You are not the current drawer."}, room.conns[1].errors(t))

	strokes := room.session.Snapshot().DrawingStrokes
	require.Len(t, strokes, 2)
	assert.Len(t, strokes[0], 2)
	assert.Len(t, strokes[1], 1)

	room.session.HandleDrawingData(ctx, drawer, types.StrokePoint{Action: types.StrokeActionClear})
	assert.Empty(t, room.session.Snapshot().DrawingStrokes)
	assert.Len(t, room.conns[1].ofType(messages.MessageTypeServerDrawingUpdate), 4)
}

func TestGameOverWinnerAndTie(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		scores     []int
		wantWinner int
		wantChat   string
	}{
		{
			name:       "unique winner",
			scores:     []int{50, 100},
			wantWinner: 1,
			wantChat:   "GAME OVER! X wins with 100 points!",
		},
		{
			name:       "tie",
			scores:     []int{150, 150},
			wantWinner: -1,
			wantChat:   "GAME OVER! It's a tie with 150 points!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _ := newTestRegistry(t, testOptions{})
			room := newTestRoom(t, registry, 1, "animals", "H", "X")

			room.session.StartGame(ctx, room.ids[0])
			room.session.lock.Lock()
			for i, id := range room.ids {
				room.session.players[id].Score = tt.scores[i]
			}
			room.session.lock.Unlock()
			room.session.StartNewRound(ctx, room.ids[0])

			gameOvers := room.conns[1].gameOvers(t)
			require.Len(t, gameOvers, 1)
			gameOver := gameOvers[0]
			assert.Equal(t, map[string]int{room.ids[0]: tt.scores[0], room.ids[1]: tt.scores[1]}, gameOver.FinalScores)
			if tt.wantWinner < 0 {
				assert.Nil(t, gameOver.WinnerID)
				assert.Nil(t, gameOver.WinnerName)
			} else {
				require.NotNil(t, gameOver.WinnerID)
				assert.Equal(t, room.ids[tt.wantWinner], *gameOver.WinnerID)
			}
			assert.True(t, room.conns[0].hasChat(t, tt.wantChat))
		})
	}
}

// H hosts, X joins, two rounds of animals: X guesses the first word, the
// second round runs out of time.
func TestTwoPlayerGame(t *testing.T) {
	ctx := context.Background()
	archive := queue.NewInMemoryQueue(16)
	registry, _ := newTestRegistry(t, testOptions{
		drawDuration: 200 * time.Millisecond,
		advanceDelay: 20 * time.Millisecond,
		archive:      archive,
	})
	room := newTestRoom(t, registry, 2, "animals", "H", "X")
	h, x := room.ids[0], room.ids[1]
	hConn, xConn := room.conns[0], room.conns[1]

	room.session.StartGame(ctx, h)
	assert.Equal(t, h, room.drawerID())
	require.Len(t, hConn.wordsToDraw(t), 1)
	assert.Empty(t, xConn.wordsToDraw(t))

	room.session.ChooseWord(ctx, h, "lion")
	assert.Equal(t, "____", xConn.lastSnapshot(t).GuessedWordHint)
	assert.Nil(t, xConn.lastSnapshot(t).SecretWord)

	room.session.HandleGuess(ctx, x, "Lion ")
	snapshot := room.session.Snapshot()
	assert.Equal(t, 50, snapshot.Players[h].Score)
	assert.Equal(t, 100, snapshot.Players[x].Score)

	assert.Eventually(t, func() bool {
		return room.session.Snapshot().RoundNumber == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, x, room.drawerID())
	require.Len(t, xConn.wordsToDraw(t), 1)

	room.session.ChooseWord(ctx, x, "owl")

	assert.Eventually(t, func() bool {
		return len(hConn.gameOvers(t)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, hConn.hasChat(t, "Time's up! The word was 'owl'."))

	gameOver := hConn.gameOvers(t)[0]
	require.NotNil(t, gameOver.WinnerID)
	assert.Equal(t, x, *gameOver.WinnerID)
	assert.True(t, xConn.hasChat(t, "GAME OVER! X wins with 100 points!"))

	archived := archive.ReadAllMessages()
	require.Len(t, archived, 3)
	first, ok := archived[0].(*models.RoundRecord)
	require.True(t, ok)
	assert.Equal(t, "lion", first.Word)
	assert.Equal(t, models.RoundEndReasonGuess, first.Reason)
	second, ok := archived[1].(*models.RoundRecord)
	require.True(t, ok)
	assert.Equal(t, "owl", second.Word)
	assert.Equal(t, models.RoundEndReasonTimeUp, second.Reason)
	result, ok := archived[2].(*models.GameResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.TotalRounds)
	assert.Equal(t, 100, result.HighScore)
}

func TestStaleTimerIsNoOp(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	room.session.lock.Lock()
	token := room.session.roundToken
	room.session.lock.Unlock()

	room.session.HandleGuess(ctx, room.ids[1], "lion")
	room.conns[0].reset()

	// the timer armed for the guessed round fires late
	room.session.endRoundIfCurrent(token, RoundEndTimeUp)

	assert.Empty(t, room.conns[0].chats(t))
	assert.Empty(t, room.conns[0].snapshots(t))
	assert.Equal(t, types.PhaseRoundEnd, room.session.Snapshot().Phase)
}

func TestTimeUpWithoutGuess(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{drawDuration: 20 * time.Millisecond})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")

	assert.Eventually(t, func() bool {
		return room.session.Snapshot().Phase == types.PhaseRoundEnd
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, room.conns[1].hasChat(t, "Time's up! The word was 'lion'."))
	assert.Equal(t, 0, room.session.Snapshot().Players[drawer].Score)
}

func TestAdvanceAfterDestroyIsNoOp(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{advanceDelay: 20 * time.Millisecond})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	room.session.HandleGuess(ctx, room.ids[1], "lion")
	registry.Destroy(room.session.ID())
	room.conns[1].reset()

	time.Sleep(100 * time.Millisecond)

	assert.False(t, room.conns[1].hasChat(t, "Starting Round 2!"))
	assert.True(t, room.session.Closed())
	_, ok := registry.Lookup(room.session.ID())
	assert.False(t, ok)
}

func TestHostSuccession(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")

	room.session.RemoveConnection(ctx, room.conns[0])

	snapshot := room.session.Snapshot()
	assert.Equal(t, room.ids[1], snapshot.HostID)
	assert.False(t, snapshot.ActiveConnections[room.ids[0]])
	assert.True(t, room.conns[2].hasChat(t, "X is now the host."))
}

func TestHostSuccessionSkipsDisconnected(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")

	room.session.RemoveConnection(ctx, room.conns[1])
	room.session.RemoveConnection(ctx, room.conns[0])

	assert.Equal(t, room.ids[2], room.session.Snapshot().HostID)
	assert.True(t, room.conns[2].hasChat(t, "Y is now the host."))
}

func TestLastDisconnectDestroysRoom(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")

	room.session.RemoveConnection(ctx, room.conns[0])
	_, ok := registry.Lookup(room.session.ID())
	assert.True(t, ok)

	room.session.RemoveConnection(ctx, room.conns[1])
	_, ok = registry.Lookup(room.session.ID())
	assert.False(t, ok)
	assert.True(t, room.session.Closed())
}

func TestDrawerDisconnectEndsRound(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	room.session.ChooseWord(ctx, drawer, "lion")
	room.session.RemoveConnection(ctx, room.conns[0])

	snapshot := room.session.Snapshot()
	assert.Equal(t, types.PhaseRoundEnd, snapshot.Phase)
	assert.Nil(t, snapshot.SecretWord)
	assert.True(t, room.conns[1].hasChat(t, "Drawer disconnected. Round ended."))
}

func TestDisconnectedDrawerIsSkipped(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	s, hostID, err := registry.CreateRoom("H", 3, "animals")
	require.NoError(t, err)
	_, _, err = registry.JoinRoom(s.ID(), "X")
	require.NoError(t, err)
	hConn := newTestConn(s.ID(), hostID)
	require.NoError(t, s.AddConnection(ctx, hConn))

	s.StartGame(ctx, hostID)
	s.StartNewRound(ctx, hostID)

	assert.True(t, hConn.hasChat(t, "Drawer X is not connected, skipping turn."))
	assert.Eventually(t, func() bool {
		return hConn.hasChat(t, "Drawer disconnected. Round ended.")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.PhaseRoundEnd, s.Snapshot().Phase)
}

func TestReconnectKeepsPlayer(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.StartGame(ctx, drawer)
	replacement := newTestConn(room.session.ID(), drawer)
	require.NoError(t, room.session.AddConnection(ctx, replacement))
	assert.True(t, room.conns[0].isClosed())

	// word choices are resent to a drawer that reconnects during selection
	require.Len(t, replacement.wordsToDraw(t), 1)

	// the stale handle going away does not affect the new one
	room.session.RemoveConnection(ctx, room.conns[0])
	snapshot := room.session.Snapshot()
	assert.True(t, snapshot.ActiveConnections[drawer])
	assert.Equal(t, drawer, snapshot.HostID)
	assert.Equal(t, types.PhaseRoundWordSelect, snapshot.Phase)
}

func TestAddConnectionUnknownPlayer(t *testing.T) {
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H")

	err := room.session.AddConnection(context.Background(), newTestConn(room.session.ID(), "nobody"))
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestFailedSendDisconnectsOnlyRecipient(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X", "Y")

	room.conns[2].setFail(true)
	room.session.HandleGuess(ctx, room.ids[1], "hello")

	assert.True(t, room.conns[0].hasChat(t, "hello"))
	assert.True(t, room.conns[1].hasChat(t, "hello"))
	assert.Eventually(t, func() bool {
		return !room.session.Snapshot().ActiveConnections[room.ids[2]]
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, room.session.hasPlayer(room.ids[2]))
	assert.True(t, room.conns[2].isClosed())
	assert.False(t, room.conns[1].isClosed())
}

func TestHandleDispatch(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, testOptions{})
	room := newTestRoom(t, registry, 3, "animals", "H", "X")
	drawer := room.ids[0]

	room.session.Handle(ctx, drawer, messages.StartGame{})
	room.session.Handle(ctx, drawer, messages.ChooseWord{Word: "lion"})
	room.session.Handle(ctx, drawer, messages.DrawingData{Point: types.StrokePoint{X: 1, Y: 1, Color: "#000000", BrushSize: 5, Action: types.StrokeActionStart}})
	room.session.Handle(ctx, room.ids[1], messages.Guess{Message: "lion"})
	room.session.Handle(ctx, drawer, messages.NextRound{})

	snapshot := room.session.Snapshot()
	assert.Equal(t, 2, snapshot.RoundNumber)
	assert.Equal(t, room.ids[1], *snapshot.CurrentDrawerID)
	assert.Equal(t, 100, snapshot.Players[room.ids[1]].Score)
}
