// Package transport owns the websocket plumbing: accepting connections,
// pumping bytes in and out, and handing decoded frames to whichever room
// owns this connection. It knows nothing about game semantics.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/symbolmatch/roomserver/config"
)

// RoomHandle is the minimal surface a Connection needs from whatever room it
// belongs to. The room package implements this; transport never imports room.
type RoomHandle interface {
	// HandleInbound is called once per decoded frame, from the connection's
	// own read goroutine. Implementations must not block.
	HandleInbound(conn *Connection, data []byte)
	// HandleDisconnect is called exactly once when the connection's pumps
	// exit, for any reason (remote close, error, forced Close).
	HandleDisconnect(conn *Connection)
}

// Connection represents a single client's websocket stream. It is the
// transient capability to deliver/receive frames; identity (Player) lives in
// the room, not here.
type Connection struct {
	ws      *websocket.Conn
	room    RoomHandle
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	log     *logrus.Entry

	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket in a Connection bound to room.
func NewConnection(ws *websocket.Conn, room RoomHandle, log *logrus.Entry) *Connection {
	return &Connection{
		ws:      ws,
		room:    room,
		send:    make(chan []byte, config.SendBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(config.InboundRateLimit), config.InboundRateBurst),
		log:     log,
	}
}

// Send queues a frame for delivery. Non-blocking: a full buffer means a slow
// reader, and the frame is dropped rather than stalling the room loop that
// called this.
func (c *Connection) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClosed
	default:
		return nil
	}
}

// Close is safe to call multiple times and from any goroutine.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.ws.Close()
}

// RemoteAddr returns the client's address for logging.
func (c *Connection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// ReadPump decodes inbound frames and forwards them to the owning room.
// Runs until the connection closes; callers should run it in its own
// goroutine. On return it calls the room's HandleDisconnect itself.
func (c *Connection) ReadPump() {
	defer func() {
		c.room.HandleDisconnect(c)
		c.Close()
	}()

	c.ws.SetReadLimit(config.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("websocket read error")
			}
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		c.room.HandleInbound(c, message)
	}
}

// WritePump drains the send channel to the socket and emits periodic pings.
// Runs until the connection closes.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errClosed = connClosedError{}

type connClosedError struct{}

func (connClosedError) Error() string { return "connection closed" }
