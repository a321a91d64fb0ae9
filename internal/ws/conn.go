package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 5 * time.Second
	enqueueTimeout = 50 * time.Millisecond
	readLimit      = 1 << 20
)

// frame is one queued outbound message.
type frame struct {
	kind    int
	payload []byte
}

// conn wraps a websocket connection with a buffered outbound queue
// drained by a single writer goroutine, so concurrent broadcasts never
// interleave writes on the wire.
type conn struct {
	ws     *websocket.Conn
	out    chan frame
	closed atomic.Bool

	once        sync.Once
	closeCode   int
	closeReason string
	aborted     bool
}

func newConn(ws *websocket.Conn, sendBuf int) *conn {
	if sendBuf < 1 {
		sendBuf = 64
	}
	return &conn{
		ws:        ws,
		out:       make(chan frame, sendBuf),
		closeCode: websocket.CloseNormalClosure,
	}
}

// SendText queues a text message. Returns false when the conn is closed
// or the queue stays full past the enqueue timeout.
func (c *conn) SendText(text string) bool {
	return c.enqueue(frame{kind: websocket.TextMessage, payload: []byte(text)})
}

// SendBinary queues a binary message.
func (c *conn) SendBinary(payload []byte) bool {
	return c.enqueue(frame{kind: websocket.BinaryMessage, payload: payload})
}

// Open reports whether the conn still accepts messages.
func (c *conn) Open() bool {
	return !c.closed.Load()
}

// Close stops the queue. The writer drains whatever is already queued,
// then sends a close control frame carrying code and reason.
func (c *conn) Close(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closed.Store(true)
		close(c.out)
	})
}

// abort stops the queue without a close frame, for exits where the
// transport already failed.
func (c *conn) abort() {
	c.once.Do(func() {
		c.aborted = true
		c.closed.Store(true)
		close(c.out)
	})
}

func (c *conn) enqueue(f frame) (ok bool) {
	// Close can race the channel send; a send on the closed queue
	// panics and counts as a failed delivery.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if c.closed.Load() {
		return false
	}
	select {
	case c.out <- f:
		return true
	case <-time.After(enqueueTimeout):
		return false
	}
}

// pump writes queued frames in order until the queue closes or a write
// fails, then tears down the underlying websocket.
func (c *conn) pump() {
	defer c.ws.Close()

	for f := range c.out {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(f.kind, f.payload); err != nil {
			c.closed.Store(true)
			return
		}
	}

	if c.aborted {
		return
	}

	// Queue closed cleanly; say goodbye before dropping the TCP conn.
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
