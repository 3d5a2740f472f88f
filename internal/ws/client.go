package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/session"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	sendBuffer = 64
)

// Sessions resolves the live session of a user.
type Sessions interface {
	Session(ctx context.Context, userID string) (*session.Session, error)
}

type Client struct {
	UserID string
	Conn   *websocket.Conn

	hub      *Hub
	sessions Sessions
	taps     *rate.Limiter
	log      *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps conn. tapsPerSecond bounds taps sent over the socket.
func NewClient(userID string, conn *websocket.Conn, hub *Hub, sessions Sessions, tapsPerSecond int) *Client {
	if tapsPerSecond <= 0 {
		tapsPerSecond = 20
	}
	return &Client{
		UserID:   userID,
		Conn:     conn,
		hub:      hub,
		sessions: sessions,
		taps:     rate.NewLimiter(rate.Limit(tapsPerSecond), tapsPerSecond),
		log:      logger.With("component", "ws_client", "user_id", userID),
		send:     make(chan []byte, sendBuffer),
	}
}

func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendMessage(msgType string, payload any) {
	msg, err := encode(msgType, payload)
	if err != nil {
		c.log.Error("encode message", "error", err, "type", msgType)
		return
	}
	c.trySend(msg)
}

// Run registers the client, pushes the current state and serves the
// connection until it closes. snapshot is read after registering so no
// published change is older than the first state sent.
func (c *Client) Run(ctx context.Context, snapshot func() domain.User) {
	c.hub.Register(c)
	go c.writePump()

	c.sendMessage(MsgState, StatePayload{User: snapshot()})
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendMessage(MsgError, ErrorPayload{Message: "invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case MsgPing:
		c.sendMessage(MsgPong, nil)
	case MsgTap:
		if !c.taps.Allow() {
			c.sendMessage(MsgError, ErrorPayload{Message: "tap rate limit exceeded"})
			return
		}
		s, err := c.sessions.Session(ctx, c.UserID)
		if err != nil {
			c.sendMessage(MsgError, ErrorPayload{Message: tapError(err)})
			return
		}
		// the new state reaches this client through the hub
		if _, err := s.Tap(); err != nil {
			c.sendMessage(MsgError, ErrorPayload{Message: tapError(err)})
		}
	default:
		c.sendMessage(MsgError, ErrorPayload{Message: "unknown message type"})
	}
}

func tapError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientResource):
		return "not enough energy"
	case errors.Is(err, domain.ErrAccountDisabled):
		return "account disabled"
	case errors.Is(err, domain.ErrNotFound):
		return "user not found"
	default:
		return "tap failed"
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
