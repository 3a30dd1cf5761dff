package constants

import "time"

const (
	// GuesserPoints is awarded to a player who guesses the word
	GuesserPoints int = 100
	// DrawerPoints is awarded to the drawer for each correct guesser
	DrawerPoints int = 50

	// DrawDuration is how long the drawer has once a word is chosen
	DrawDuration = 60 * time.Second
	// AdvanceDelay is the pause between the end of a round and the next one
	AdvanceDelay = 3 * time.Second
	// WordChoices is the number of candidate words offered to the drawer
	WordChoices int = 3

	// DefaultTotalRounds is used when a room is created without a round count
	DefaultTotalRounds int = 5
	// MaxTotalRounds caps the rounds of a single game
	MaxTotalRounds int = 10
	// MaxPlayers caps the players of a single room
	MaxPlayers int = 12

	// RoomIDLength is the number of characters in a room ID
	RoomIDLength int = 6
	// RoomIDAlphabet holds the characters a room ID is drawn from
	RoomIDAlphabet string = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// RoomIDMaxRetries represents the maximum number of retries when generating a unique room ID
	RoomIDMaxRetries int = 1024

	// MaxPlayerNameLength is the longest accepted display name, in characters
	MaxPlayerNameLength int = 16
	// MaxChatLength truncates chat messages, in characters
	MaxChatLength int = 200
)
