package transport

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn is a Conn over a WebSocket. FluidNC controllers expose their
// serial stream on a WebSocket endpoint, which lets the host run away from
// the rig with no USB cable. Each text frame may carry several lines or a
// fragment of one, so frames are re-split on line boundaries here.
type WSConn struct {
	conn *websocket.Conn
	addr string

	mu      sync.Mutex
	pending []string
	partial string
	closed  bool
}

// DialWebSocket connects to a controller WebSocket endpoint. Accepts
// "host:port", "ws://host:port/path", or "wss://...".
func DialWebSocket(address string, timeout time.Duration) (*WSConn, error) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	target := address
	if !strings.Contains(target, "://") {
		target = (&url.URL{Scheme: "ws", Host: address, Path: "/"}).String()
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}
	return &WSConn{conn: conn, addr: target}, nil
}

// ReadLine implements Conn. Frames are buffered and returned one line at
// a time.
func (c *WSConn) ReadLine() (string, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			line := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return line, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return "", ErrClosed
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", ErrClosed
			}
			return "", err
		}
		c.splitFrame(string(data))
	}
}

// splitFrame appends a frame to the line buffer, carrying an unterminated
// tail over to the next frame.
func (c *WSConn) splitFrame(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.partial + frame
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		c.pending = append(c.pending, trimEOL(buf[:i+1]))
		buf = buf[i+1:]
	}
	c.partial = buf
}

// Write implements Conn.
func (c *WSConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements Conn.
func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Name implements Conn.
func (c *WSConn) Name() string {
	return c.addr
}
