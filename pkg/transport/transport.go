// Package transport provides the line-oriented byte stream between the
// host and the motion controller. A transport owns the open connection and
// offers exactly two primitives - blocking line reads and raw byte writes -
// with no protocol knowledge. The controller client layers classification
// and command pairing on top.
package transport

import (
	"errors"
	"io"
	"sync"
)

// Common errors
var (
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is the byte-stream link to the controller. Exactly one goroutine
// may call ReadLine; Write is safe for concurrent use only through the
// caller's own serialization (the controller client funnels every write
// through a single mutex).
type Conn interface {
	// ReadLine blocks until one complete line is available and returns it
	// without the terminator. Returns io.EOF or ErrClosed when the link
	// is gone.
	ReadLine() (string, error)

	// Write sends raw bytes. Line commands include their own terminator;
	// immediate commands are single bytes with none.
	Write(p []byte) (int, error)

	// Close tears down the connection. ReadLine unblocks with an error.
	Close() error

	// Name identifies the endpoint for logging.
	Name() string
}

// Pipe is an in-memory Conn used as the test double for the production
// transports. One side plays the controller: Feed pushes inbound lines,
// Sent exposes everything the client wrote.
type Pipe struct {
	mu     sync.Mutex
	lines  chan string
	sent   []byte
	closed bool
	done   chan struct{}

	// WriteHook, when set, observes every Write before it is recorded.
	// Tests use it to script controller behavior.
	WriteHook func(p []byte)
}

// NewPipe creates an open in-memory transport.
func NewPipe() *Pipe {
	return &Pipe{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
}

// Feed queues one inbound line as if the controller had sent it.
func (p *Pipe) Feed(line string) {
	select {
	case p.lines <- line:
	case <-p.done:
	}
}

// ReadLine implements Conn.
func (p *Pipe) ReadLine() (string, error) {
	select {
	case line := <-p.lines:
		return line, nil
	case <-p.done:
		// Drain anything fed before the close.
		select {
		case line := <-p.lines:
			return line, nil
		default:
			return "", io.EOF
		}
	}
}

// Write implements Conn.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	hook := p.WriteHook
	p.sent = append(p.sent, b...)
	p.mu.Unlock()

	if hook != nil {
		hook(b)
	}
	return len(b), nil
}

// Sent returns a copy of everything written so far.
func (p *Pipe) Sent() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

// Close implements Conn.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}

// Name implements Conn.
func (p *Pipe) Name() string { return "pipe" }
