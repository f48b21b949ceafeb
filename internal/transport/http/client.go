package http

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 16 * 1024
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errClientClosed   = errors.New("client closed")
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one websocket connection; it implements gateway.Conn.
type client struct {
	id     string
	conn   *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	send   chan outboundMessage
	closed bool
	done   chan struct{}
}

func newClient(id string, conn *websocket.Conn, logger zerolog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		logger: logger,
		send:   make(chan outboundMessage, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Send enqueues without blocking; a full buffer drops the message.
func (c *client) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- outboundMessage{Type: event, Payload: payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the writer and tears down the socket, which ends the read loop.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	<-c.done
	return c.conn.Close()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("ws write failed")
				c.drain()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drain()
				_ = c.conn.Close()
				return
			}
		}
	}
}

// drain discards queued messages after a write failure so Close never waits on a dead socket.
func (c *client) drain() {
	go func() {
		for range c.send {
		}
	}()
}
