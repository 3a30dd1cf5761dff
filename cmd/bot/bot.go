package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cbodonnell/scribble/pkg/api/handlers"
	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/words"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	strokePoints   = 16
	strokeRadius   = 80.0
	strokeDelay    = 50 * time.Millisecond
	requestTimeout = 10 * time.Second
)

// Bot plays one game in a room: it starts the game as host, draws a circle
// for its own words and guesses words from the room's category otherwise.
type Bot struct {
	serverURL     string
	name          string
	roomID        string
	totalRounds   int
	category      string
	minPlayers    int
	guessInterval time.Duration
	origin        string

	pool       *words.Pool
	httpClient *http.Client
	conn       *websocket.Conn

	stateLock      sync.Mutex
	playerID       string
	state          *types.Snapshot
	startRequested bool
	guessed        map[string]bool
	guessedRound   int
}

type NewBotOptions struct {
	ServerURL     string
	Name          string
	RoomID        string
	TotalRounds   int
	Category      string
	MinPlayers    int
	GuessInterval time.Duration
	Origin        string
}

func NewBot(opts NewBotOptions) *Bot {
	return &Bot{
		serverURL:     strings.TrimSuffix(opts.ServerURL, "/"),
		name:          opts.Name,
		roomID:        opts.RoomID,
		totalRounds:   opts.TotalRounds,
		category:      opts.Category,
		minPlayers:    opts.MinPlayers,
		guessInterval: opts.GuessInterval,
		origin:        opts.Origin,
		pool:          words.NewPool(words.NewPoolOptions{}),
		httpClient:    &http.Client{Timeout: requestTimeout},
		guessed:       make(map[string]bool),
	}
}

// Run joins the room and plays until the game is over or ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.enterRoom(ctx); err != nil {
		return err
	}
	log.Info("Playing as %s (%s) in room %s", b.name, b.playerID, b.roomID)

	wsURL, err := b.websocketURL()
	if err != nil {
		return err
	}
	dialOpts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if b.origin != "" {
		dialOpts.HTTPHeader.Set("Origin", b.origin)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, dialOpts)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", wsURL, err)
	}
	conn.SetReadLimit(1 << 20)
	b.conn = conn
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.readLoop(ctx)
	})
	g.Go(func() error {
		b.guessLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (b *Bot) enterRoom(ctx context.Context) error {
	if b.roomID == "" {
		resp := &handlers.CreateRoomResponse{}
		err := b.postJSON(ctx, "/api/create_room", handlers.CreateRoomRequest{
			PlayerName:   b.name,
			TotalRounds:  b.totalRounds,
			WordCategory: b.category,
		}, resp)
		if err != nil {
			return fmt.Errorf("failed to create room: %v", err)
		}
		b.roomID = resp.RoomID
		b.playerID = resp.PlayerID
		b.state = resp.RoomState
		return nil
	}

	resp := &handlers.JoinRoomResponse{}
	err := b.postJSON(ctx, "/api/join_room", handlers.JoinRoomRequest{
		RoomID:     b.roomID,
		PlayerName: b.name,
	}, resp)
	if err != nil {
		return fmt.Errorf("failed to join room %s: %v", b.roomID, err)
	}
	b.playerID = resp.PlayerID
	b.state = resp.RoomState
	if b.state != nil {
		b.roomID = b.state.ID
	}
	return nil
}

func (b *Bot) postJSON(ctx context.Context, path string, body, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errResp := &handlers.ErrorResponse{}
		if err := json.NewDecoder(resp.Body).Decode(errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		return fmt.Errorf("%s", errResp.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

func (b *Bot) websocketURL() (string, error) {
	u, err := url.Parse(b.serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %v", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(b.roomID) + "/" + url.PathEscape(b.playerID)
	return u.String(), nil
}

func (b *Bot) readLoop(ctx context.Context) error {
	for {
		msg := &messages.Message{}
		if err := wsjson.Read(ctx, b.conn, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("connection closed by server: %v", err)
			}
			return fmt.Errorf("failed to read message: %v", err)
		}

		done, err := b.handleMessage(ctx, msg)
		if err != nil {
			log.Error("Failed to handle %s message: %v", msg.Type, err)
		}
		if done {
			return nil
		}
	}
}

// handleMessage reacts to one server message. It reports true once the game is over.
func (b *Bot) handleMessage(ctx context.Context, msg *messages.Message) (bool, error) {
	log.Trace("Received message of type %s", msg.Type)

	switch msg.Type {
	case messages.MessageTypeServerGameStateUpdate:
		snapshot := &messages.GameStateUpdate{}
		if err := json.Unmarshal(msg.Payload, snapshot); err != nil {
			return false, fmt.Errorf("failed to deserialize game state: %v", err)
		}
		if b.shouldStart(snapshot) {
			log.Info("Starting the game")
			return false, b.send(ctx, messages.MessageTypeClientStartGame, struct{}{})
		}
	case messages.MessageTypeServerWordToDraw:
		wordToDraw := &messages.WordToDraw{}
		if err := json.Unmarshal(msg.Payload, wordToDraw); err != nil {
			return false, fmt.Errorf("failed to deserialize word choices: %v", err)
		}
		if wordToDraw.CurrentDrawerID != b.playerID || len(wordToDraw.Words) == 0 {
			return false, nil
		}
		word := wordToDraw.Words[0]
		log.Info("Drawing %q", word)
		if err := b.send(ctx, messages.MessageTypeClientChooseWord, messages.ChooseWord{Word: word}); err != nil {
			return false, err
		}
		go b.drawCircle(ctx)
	case messages.MessageTypeServerChatMessage:
		chat := &messages.ChatMessage{}
		if err := json.Unmarshal(msg.Payload, chat); err != nil {
			return false, fmt.Errorf("failed to deserialize chat message: %v", err)
		}
		log.Info("[%s] %s", chat.Sender, chat.Message)
	case messages.MessageTypeServerError:
		serverErr := &messages.ErrorMessage{}
		if err := json.Unmarshal(msg.Payload, serverErr); err != nil {
			return false, fmt.Errorf("failed to deserialize error message: %v", err)
		}
		log.Warn("Server error: %s", serverErr.Message)
	case messages.MessageTypeServerGameOver:
		gameOver := &messages.GameOver{}
		if err := json.Unmarshal(msg.Payload, gameOver); err != nil {
			return true, fmt.Errorf("failed to deserialize game over: %v", err)
		}
		if gameOver.WinnerName != nil {
			log.Info("Game over, %s won. Scores: %v", *gameOver.WinnerName, gameOver.FinalScores)
		} else {
			log.Info("Game over with a tie. Scores: %v", gameOver.FinalScores)
		}
		return true, nil
	case messages.MessageTypeServerDrawingUpdate:
		// the bot does not look at the canvas
	default:
		log.Debug("Ignoring message of type %s", msg.Type)
	}
	return false, nil
}

// shouldStart stores the snapshot and reports whether the bot, as host,
// should now ask to start the game.
func (b *Bot) shouldStart(snapshot *types.Snapshot) bool {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	b.state = snapshot
	if b.startRequested || snapshot.HostID != b.playerID || snapshot.Phase != types.PhaseLobby {
		return false
	}
	connected := 0
	for _, active := range snapshot.ActiveConnections {
		if active {
			connected++
		}
	}
	if connected < b.minPlayers {
		return false
	}
	b.startRequested = true
	return true
}

func (b *Bot) guessLoop(ctx context.Context) {
	ticker := time.NewTicker(b.guessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			guess, ok := b.nextGuess()
			if !ok {
				continue
			}
			if err := b.send(ctx, messages.MessageTypeClientGuess, messages.Guess{Message: guess}); err != nil {
				log.Error("Failed to send guess: %v", err)
			}
		}
	}
}

// nextGuess picks an untried word of the category as long as the hint.
func (b *Bot) nextGuess() (string, bool) {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	s := b.state
	if s == nil || s.Phase != types.PhaseRoundDrawing {
		return "", false
	}
	if s.CurrentDrawerID != nil && *s.CurrentDrawerID == b.playerID {
		return "", false
	}
	if me, ok := s.Players[b.playerID]; ok && me.HasGuessed {
		return "", false
	}
	if b.guessedRound != s.RoundNumber {
		b.guessedRound = s.RoundNumber
		b.guessed = make(map[string]bool)
	}

	candidates := make([]string, 0)
	for _, w := range b.pool.Words(s.WordCategory) {
		if !b.guessed[w] && matchesHint(w, s.GuessedWordHint) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	guess := candidates[rand.Intn(len(candidates))]
	b.guessed[guess] = true
	return guess, true
}

// matchesHint reports whether word fits the hint, which has one underscore per rune.
func matchesHint(word, hint string) bool {
	return utf8.RuneCountInString(word) == utf8.RuneCountInString(hint)
}

func (b *Bot) drawCircle(ctx context.Context) {
	for i := 0; i <= strokePoints; i++ {
		angle := 2 * math.Pi * float64(i) / strokePoints
		action := types.StrokeActionDraw
		switch i {
		case 0:
			action = types.StrokeActionStart
		case strokePoints:
			action = types.StrokeActionEnd
		}
		point := types.StrokePoint{
			X:         200 + strokeRadius*math.Cos(angle),
			Y:         200 + strokeRadius*math.Sin(angle),
			Color:     "#000000",
			BrushSize: 4,
			Action:    action,
		}
		if err := b.send(ctx, messages.MessageTypeClientDrawingData, point); err != nil {
			log.Error("Failed to send drawing data: %v", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(strokeDelay):
		}
	}
}

func (b *Bot) send(ctx context.Context, messageType string, payload interface{}) error {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, b.conn, msg); err != nil {
		return fmt.Errorf("failed to send %s: %v", messageType, err)
	}
	return nil
}
