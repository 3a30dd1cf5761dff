package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// EventHandler is the game side of a websocket connection.
type EventHandler interface {
	// Attach registers a freshly upgraded connection with its session.
	Attach(ctx context.Context, conn Connection) error
	// HandleEvent processes one inbound event, in arrival order.
	HandleEvent(ctx context.Context, conn Connection, event messages.ClientEvent)
}

// WSServer upgrades HTTP requests and pumps messages between the socket and the game.
type WSServer struct {
	connections  *ConnectionManager
	handler      EventHandler
	upgrader     websocket.Upgrader
	sendBuffer   int
	inboundRate  rate.Limit
	inboundBurst int
	writeTimeout time.Duration
	pongWait     time.Duration
}

type NewWSServerOptions struct {
	Connections *ConnectionManager
	Handler     EventHandler
	// AllowedOrigin is matched against the Origin header; "*" or "" allows any.
	AllowedOrigin string
	SendBuffer    int
	InboundRate   float64
	InboundBurst  int
	WriteTimeout  time.Duration
	PongWait      time.Duration
}

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
)

// NewWSServer creates a new WebSocket server. A non-positive InboundRate
// disables inbound throttling.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	inboundRate := rate.Inf
	if opts.InboundRate > 0 {
		inboundRate = rate.Limit(opts.InboundRate)
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = 1
	}

	allowedOrigin := opts.AllowedOrigin
	return &WSServer{
		connections: opts.Connections,
		handler:     opts.Handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  messages.MessageBufferSize,
			WriteBufferSize: messages.MessageBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		sendBuffer:   opts.SendBuffer,
		inboundRate:  inboundRate,
		inboundBurst: opts.InboundBurst,
		writeTimeout: opts.WriteTimeout,
		pongWait:     opts.PongWait,
	}
}

// HandleConnection upgrades the request and serves the socket until it closes.
func (s *WSServer) HandleConnection(w http.ResponseWriter, r *http.Request, roomID, playerID string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	log.Debug("New WebSocket connection from %s for player %s in room %s", ws.RemoteAddr().String(), playerID, roomID)

	conn := newWSConnection(ws, roomID, playerID, s.sendBuffer, s.writeTimeout, s.pongWait)
	go conn.writePump()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := s.handler.Attach(ctx, conn); err != nil {
		log.Warn("Rejected connection for player %s in room %s: %v", playerID, roomID, err)
		conn.closeWith(websocket.ClosePolicyViolation, err.Error())
		return
	}

	s.handleWSConnection(ctx, conn)
}

// handleWSConnection reads frames until the socket fails, then disconnects the player.
func (s *WSServer) handleWSConnection(ctx context.Context, conn *WSConnection) {
	defer func() {
		s.connections.Disconnect(conn)
		conn.Close("connection closed")
	}()

	limiter := rate.NewLimiter(s.inboundRate, s.inboundBurst)

	for {
		data, err := conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Error("Error reading WebSocket message from player %s: %v", conn.PlayerID(), err)
			}
			log.Trace("Connection closed for player %s", conn.PlayerID())
			return
		}

		if !limiter.Allow() {
			log.Debug("Dropping message from player %s: rate limit exceeded", conn.PlayerID())
			continue
		}

		event, err := messages.DecodeClientEvent(data)
		if err != nil {
			if errors.Is(err, messages.ErrUnknownMessageType) {
				log.Warn("Ignoring message from player %s: %v", conn.PlayerID(), err)
			} else {
				log.Debug("Dropping message from player %s: %v", conn.PlayerID(), err)
			}
			continue
		}

		s.handler.HandleEvent(ctx, conn, event)
	}
}

const maxCloseReason = 123

// WSConnection is a websocket-backed Connection. Outbound messages are
// queued and written by a single pump goroutine.
type WSConnection struct {
	ws       *websocket.Conn
	roomID   string
	playerID string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	writeTimeout time.Duration
	pongWait     time.Duration
}

func newWSConnection(ws *websocket.Conn, roomID, playerID string, sendBuffer int, writeTimeout, pongWait time.Duration) *WSConnection {
	ws.SetReadLimit(messages.MessageBufferSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &WSConnection{
		ws:           ws,
		roomID:       roomID,
		playerID:     playerID,
		send:         make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
	}
}

func (c *WSConnection) RoomID() string {
	return c.roomID
}

func (c *WSConnection) PlayerID() string {
	return c.playerID
}

// Send queues msg for the write pump.
func (c *WSConnection) Send(ctx context.Context, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *WSConnection) Close(reason string) {
	c.closeWith(websocket.CloseNormalClosure, reason)
}

func (c *WSConnection) closeWith(code int, reason string) {
	// control frame payloads are capped at 125 bytes
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = reason
		close(c.closed)
	})
}

func (c *WSConnection) read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *WSConnection) writePump() {
	pingPeriod := c.pongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug("Failed to write to player %s: %v", c.playerID, err)
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				log.Debug("Failed to ping player %s: %v", c.playerID, err)
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.closed:
			if c.closeCode == websocket.CloseAbnormalClosure {
				return
			}
			c.drain()
			frame := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			if err := c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.writeTimeout)); err != nil {
				log.Trace("Failed to write close frame to player %s: %v", c.playerID, err)
			}
			return
		}
	}
}

// drain flushes messages queued before the connection was closed.
func (c *WSConnection) drain() {
	for {
		select {
		case b := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			return
		}
	}
}
