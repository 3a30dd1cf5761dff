package main

import (
	"testing"

	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesHint(t *testing.T) {
	assert.True(t, matchesHint("lion", "____"))
	assert.True(t, matchesHint("ice cream", "_________"))
	assert.False(t, matchesHint("owl", "____"))
	assert.True(t, matchesHint("café", "____"))
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/ABC123/p1"},
		{"https://scribble.example/", "wss://scribble.example/ws/ABC123/p1"},
		{"http://host/prefix", "ws://host/prefix/ws/ABC123/p1"},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			b := NewBot(NewBotOptions{ServerURL: tt.server})
			b.roomID = "ABC123"
			b.playerID = "p1"
			got, err := b.websocketURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldStart(t *testing.T) {
	b := NewBot(NewBotOptions{MinPlayers: 2})
	b.playerID = "host"

	lobby := &types.Snapshot{
		Phase:             types.PhaseLobby,
		HostID:            "host",
		ActiveConnections: map[string]bool{"host": true, "other": false},
	}
	assert.False(t, b.shouldStart(lobby))

	lobby.ActiveConnections["other"] = true
	assert.True(t, b.shouldStart(lobby))
	// only once
	assert.False(t, b.shouldStart(lobby))

	guest := NewBot(NewBotOptions{MinPlayers: 2})
	guest.playerID = "other"
	assert.False(t, guest.shouldStart(lobby))
}

func TestNextGuess(t *testing.T) {
	b := NewBot(NewBotOptions{})
	b.playerID = "me"
	drawer := "other"

	b.state = &types.Snapshot{
		Phase:           types.PhaseRoundDrawing,
		CurrentDrawerID: &drawer,
		GuessedWordHint: "____",
		RoundNumber:     1,
		WordCategory:    "animals",
		Players: map[string]*types.Player{
			"me":    {ID: "me"},
			"other": {ID: "other"},
		},
	}

	seen := make(map[string]bool)
	for {
		guess, ok := b.nextGuess()
		if !ok {
			break
		}
		assert.Len(t, []rune(guess), 4)
		assert.False(t, seen[guess], "guessed %q twice", guess)
		seen[guess] = true
	}
	assert.NotEmpty(t, seen)

	// a new round resets the tried words
	b.state.RoundNumber = 2
	_, ok := b.nextGuess()
	assert.True(t, ok)

	b.state.Players["me"].HasGuessed = true
	_, ok = b.nextGuess()
	assert.False(t, ok)

	b.state.Players["me"].HasGuessed = false
	b.state.CurrentDrawerID = &b.playerID
	_, ok = b.nextGuess()
	assert.False(t, ok)
}
