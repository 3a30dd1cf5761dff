package models

import (
	"time"

	"github.com/cbodonnell/scribble/pkg/game/types"
)

// Reasons a round can end.
const (
	RoundEndReasonGuess              = "guess"
	RoundEndReasonTimeUp             = "time_up"
	RoundEndReasonDrawerDisconnected = "drawer_disconnected"
)

type PlayerScore struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// GameResult is the outcome of one finished game.
type GameResult struct {
	ID          int64         `json:"id"`
	RoomID      string        `json:"room_id"`
	Category    string        `json:"category"`
	TotalRounds int           `json:"total_rounds"`
	WinnerID    *string       `json:"winner_id"`
	WinnerName  *string       `json:"winner_name"`
	HighScore   int           `json:"high_score"`
	Scores      []PlayerScore `json:"scores"`
	EndedAt     time.Time     `json:"ended_at"`
}

// RoundRecord is one finished round in which a word was chosen.
type RoundRecord struct {
	ID          int64          `json:"id"`
	RoomID      string         `json:"room_id"`
	RoundNumber int            `json:"round_number"`
	DrawerID    string         `json:"drawer_id"`
	DrawerName  string         `json:"drawer_name"`
	Word        string         `json:"word"`
	Reason      string         `json:"reason"`
	Strokes     []types.Stroke `json:"strokes"`
	EndedAt     time.Time      `json:"ended_at"`
}
