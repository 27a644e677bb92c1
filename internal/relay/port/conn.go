// Package port is the WebSocket transport: connection lifecycle, the
// registry that fans frames out, identity resolution, and the inbound frame
// dispatcher. Everything here speaks pkg/protocol and calls into the app
// layer; no business rules live in this package.
package port

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/errmap"
	"github.com/aelexs/chat-relay/internal/relay/app"
)

// Conn wraps one WebSocket with a buffered outbound queue drained by a
// single writer goroutine. All writes to the socket go through that
// goroutine; the rest of the server only ever enqueues.
type Conn struct {
	session *app.Session
	ws      *websocket.Conn
	send    chan any
	logger  *slog.Logger

	// flood limits raw inbound frame rate before any parsing. Separate
	// concern from the chat-policy limiter: this one only protects the
	// process from a spinning client.
	flood *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an upgraded socket.
func NewConn(ws *websocket.Conn, session *app.Session, logger *slog.Logger) *Conn {
	return &Conn{
		session: session,
		ws:      ws,
		send:    make(chan any, domain.OutboundBufferSize),
		logger:  logger,
		flood:   rate.NewLimiter(rate.Limit(domain.InboundFloodRate), domain.InboundFloodBurst),
		closed:  make(chan struct{}),
	}
}

// Session returns the resolved identity for this connection.
func (c *Conn) Session() *app.Session { return c.session }

// Enqueue queues a frame for delivery. A full buffer marks the client as a
// slow consumer and drops the connection rather than blocking the caller.
func (c *Conn) Enqueue(frame any) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("dropping slow consumer",
			"conn_id", c.session.Conn.String(),
			"error", domain.ErrSlowConsumer,
		)
		c.CloseWith(errmap.ToWebSocketClose(domain.ErrSlowConsumer))
		return false
	}
}

// CloseWith sends a close frame with the given code and tears the socket
// down. Safe to call more than once.
func (c *Conn) CloseWith(wsClose errmap.WebSocketClose) {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(domain.WriteWait)
		msg := websocket.FormatCloseMessage(wsClose.Code, wsClose.Reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.ws.Close()
	})
}

// Done is closed when the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// writePump drains the outbound queue onto the socket and keeps the
// heartbeat going. Runs as the connection's single writer goroutine.
func (c *Conn) writePump() {
	ticker := time.NewTicker(domain.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.CloseWith(errmap.CloseServerShutdown)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop pulls raw frames off the socket until it errors or closes. The
// pong handler extends the read deadline, so a silent client is reaped after
// PongWait without traffic.
func (c *Conn) readLoop(handle func(data []byte)) {
	c.ws.SetReadLimit(domain.MaxInboundBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(domain.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(domain.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("socket read ended",
					"conn_id", c.session.Conn.String(),
					"error", err,
				)
			}
			return
		}

		if !c.flood.Allow() {
			c.logger.Warn("inbound flood, dropping connection",
				"conn_id", c.session.Conn.String(),
			)
			c.CloseWith(errmap.WebSocketClose{Code: errmap.CloseRateLimited, Reason: "flood"})
			return
		}

		handle(data)
	}
}
