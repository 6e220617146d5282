package hub

import (
	"sync"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Socket is the subset of *websocket.Conn the hub depends on, split
// out so tests can drive connections without a network.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is one live socket plus its registry metadata. The metadata is
// owned by the Hub; everything mutable is guarded by the Hub lock.
type Conn struct {
	ws   Socket
	role models.Role
	id   string
	ip   string

	connectedAt time.Time
	battery     *int // guarded by Hub.mu

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws Socket, role models.Role, id, ip string, now time.Time) *Conn {
	return &Conn{
		ws:          ws,
		role:        role,
		id:          id,
		ip:          ip,
		connectedAt: now,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) Role() models.Role { return c.role }
func (c *Conn) IP() string        { return c.ip }

// enqueue queues a frame for the write pump, dropping it if the queue
// is full. Delivery is best-effort.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// ReadPump consumes frames until the socket errors out, handing each
// raw frame to handler. It blocks the caller's goroutine.
func (c *Conn) ReadPump(handler func(raw []byte)) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		handler(raw)
	}
}

// WritePump drains the send queue onto the socket, one JSON frame per
// message, and keeps the connection alive with periodic pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
