package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/scribble/pkg/game/types"
)

const (
	// MessageBufferSize represents the maximum size of an inbound frame
	MessageBufferSize = 16 * 1024
)

// Message types sent by clients
const (
	MessageTypeClientGuess       = "GUESS"
	MessageTypeClientDrawingData = "DRAWING_DATA"
	MessageTypeClientStartGame   = "START_GAME"
	MessageTypeClientNextRound   = "NEXT_ROUND"
	MessageTypeClientChooseWord  = "CHOOSE_WORD"
)

// Message types sent by the server
const (
	MessageTypeServerGameStateUpdate = "GAME_STATE_UPDATE"
	MessageTypeServerDrawingUpdate   = "DRAWING_UPDATE"
	MessageTypeServerChatMessage     = "CHAT_MESSAGE"
	MessageTypeServerWordToDraw      = "WORD_TO_DRAW"
	MessageTypeServerError           = "ERROR"
	MessageTypeServerGameOver        = "GAME_OVER"
)

// SystemSender is the chat sender name used for announcements.
const SystemSender = "System"

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(messageType string, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", messageType, err)
	}
	return &Message{
		Type:    messageType,
		Payload: b,
	}, nil
}

// SerializeMessage encodes a message as a JSON text frame.
func SerializeMessage(m *Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return b, nil
}

// DeserializeMessage decodes a JSON text frame into a message envelope.
func DeserializeMessage(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}
	return m, nil
}

type ChatMessage struct {
	Sender         string `json:"sender"`
	Message        string `json:"message"`
	IsCorrectGuess bool   `json:"isCorrectGuess"`
}

type WordToDraw struct {
	Words           []string `json:"words"`
	CurrentDrawerID string   `json:"current_drawer_id"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type GameOver struct {
	WinnerID    *string        `json:"winner_id"`
	WinnerName  *string        `json:"winner_name"`
	FinalScores map[string]int `json:"final_scores"`
}

// GameStateUpdate carries a snapshot; the payload is the snapshot itself.
type GameStateUpdate = types.Snapshot

// DrawingUpdate carries a single stroke point.
type DrawingUpdate = types.StrokePoint
