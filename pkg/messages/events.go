package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cbodonnell/scribble/pkg/game/types"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedPayload   = errors.New("malformed payload")
)

// ClientEvent is one validated inbound action. The set of implementations
// is closed: only the types in this file satisfy it.
type ClientEvent interface {
	clientEvent()
	MessageType() string
}

type Guess struct {
	Message string `json:"message"`
}

type DrawingData struct {
	Point types.StrokePoint
}

type StartGame struct{}

type NextRound struct{}

type ChooseWord struct {
	Word string `json:"word"`
}

func (Guess) clientEvent()       {}
func (DrawingData) clientEvent() {}
func (StartGame) clientEvent()   {}
func (NextRound) clientEvent()   {}
func (ChooseWord) clientEvent()  {}

func (Guess) MessageType() string       { return MessageTypeClientGuess }
func (DrawingData) MessageType() string { return MessageTypeClientDrawingData }
func (StartGame) MessageType() string   { return MessageTypeClientStartGame }
func (NextRound) MessageType() string   { return MessageTypeClientNextRound }
func (ChooseWord) MessageType() string  { return MessageTypeClientChooseWord }

type drawingDataPayload struct {
	X         *float64           `json:"x"`
	Y         *float64           `json:"y"`
	Color     string             `json:"color"`
	BrushSize int32              `json:"brush_size"`
	Action    types.StrokeAction `json:"action"`
}

// DecodeClientEvent parses a raw inbound frame into its event variant.
// Errors wrap ErrUnknownMessageType or ErrMalformedPayload.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	m, err := DeserializeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ParseClientEvent(m)
}

// ParseClientEvent converts an envelope into its event variant.
func ParseClientEvent(m *Message) (ClientEvent, error) {
	switch m.Type {
	case MessageTypeClientGuess:
		guess := Guess{}
		if err := unmarshalPayload(m, &guess); err != nil {
			return nil, err
		}
		return guess, nil
	case MessageTypeClientDrawingData:
		return parseDrawingData(m)
	case MessageTypeClientStartGame:
		return StartGame{}, nil
	case MessageTypeClientNextRound:
		return NextRound{}, nil
	case MessageTypeClientChooseWord:
		choose := ChooseWord{}
		if err := unmarshalPayload(m, &choose); err != nil {
			return nil, err
		}
		return choose, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}

func parseDrawingData(m *Message) (ClientEvent, error) {
	payload := drawingDataPayload{}
	if err := unmarshalPayload(m, &payload); err != nil {
		return nil, err
	}

	point := types.StrokePoint{
		Color:     payload.Color,
		BrushSize: payload.BrushSize,
		Action:    payload.Action,
	}
	if payload.X == nil || payload.Y == nil {
		// a canvas clear carries no position
		if payload.Action != types.StrokeActionClear {
			return nil, fmt.Errorf("%w: drawing data requires x and y", ErrMalformedPayload)
		}
	} else {
		point.X = *payload.X
		point.Y = *payload.Y
	}

	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return DrawingData{Point: point}, nil
}

func unmarshalPayload(m *Message, v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrMalformedPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
