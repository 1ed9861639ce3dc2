package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/teranos/savesync/logger"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (save blobs are small JSON documents)
	maxMessageSize = 1024 * 1024
)

// Client represents one connected governing program
type Client struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	send    chan Message
	done    chan struct{}
	limiter *rate.Limiter
}

// HandleWebSocket upgrades the connection and starts the client's pumps
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Debugw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		server:  s,
		conn:    conn,
		send:    make(chan Message, MaxClientMessageQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.SaveRatePerSecond), s.cfg.SaveBurst),
	}

	if !s.register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// enqueue queues msg for the write pump without blocking.
// It reports false only when the queue is full.
func (c *Client) enqueue(msg Message) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump reads client messages in order. Saves are paced by the client's
// limiter, which blocks the pump instead of dropping frames.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.handleReadError(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.routeMessage(msg)
	}
}

// handleReadError logs unexpected disconnects; normal closes stay quiet
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
		c.server.logger.Warnw("WebSocket read error",
			logger.FieldClientID, shortID(c.id),
			logger.FieldError, err,
		)
		return
	}
	c.server.logger.Debugw("WebSocket closed",
		logger.FieldClientID, shortID(c.id),
		logger.FieldError, err,
	)
}

func (c *Client) routeMessage(msg Message) {
	switch msg.Type {
	case MsgSave:
		c.handleSave(msg.Blob)
	case MsgLoad:
		c.handleLoad()
	case MsgPing:
		// Just update deadline
	default:
		c.server.logger.Debugw("Unknown message type",
			"type", msg.Type,
			logger.FieldClientID, shortID(c.id),
		)
		c.reply(Message{Type: MsgError, Error: "unknown message type: " + msg.Type})
	}
}

func (c *Client) handleSave(blob string) {
	ctx := c.server.ctx
	if err := c.limiter.Wait(ctx); err != nil {
		// server shutting down
		return
	}
	if err := c.server.save(ctx, blob); err != nil {
		c.server.logger.Errorw("Failed to handle save",
			logger.FieldClientID, shortID(c.id),
			logger.FieldError, err,
		)
		c.reply(Message{Type: MsgError, Error: err.Error()})
		return
	}
	c.reply(Message{Type: MsgSaved})
}

func (c *Client) handleLoad() {
	blob, found, err := c.server.load(c.server.ctx)
	if err != nil {
		c.server.logger.Errorw("Failed to handle load",
			logger.FieldClientID, shortID(c.id),
			logger.FieldError, err,
		)
		c.reply(Message{Type: MsgError, Error: err.Error()})
		return
	}
	c.reply(Message{Type: MsgState, Blob: blob, Found: &found})
}

func (c *Client) reply(msg Message) {
	if !c.enqueue(msg) {
		c.server.logger.Warnw("Client send queue full, dropping reply",
			logger.FieldClientID, shortID(c.id),
			"type", msg.Type,
		)
	}
}

// writePump serializes every write to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("Message write error",
					logger.FieldClientID, shortID(c.id),
					logger.FieldError, err,
				)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
