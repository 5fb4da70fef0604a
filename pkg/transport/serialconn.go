package transport

import (
	"bufio"
	"errors"
	"io"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/serial"
)

// SerialConn adapts a raw serial port into a line-oriented Conn.
type SerialConn struct {
	port   *serial.Port
	reader *bufio.Reader
}

// OpenSerial opens the serial device and wraps it for line reads.
func OpenSerial(cfg serial.Config) (*SerialConn, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewSerialConn(port), nil
}

// NewSerialConn wraps an already-open port.
func NewSerialConn(port *serial.Port) *SerialConn {
	return &SerialConn{
		port:   port,
		reader: bufio.NewReaderSize(portReader{port}, 1024),
	}
}

// portReader adapts Port.Read's timeout behavior for bufio: a poll timeout
// yields a zero-byte read and the caller retries, it is not stream death.
type portReader struct {
	port *serial.Port
}

func (r portReader) Read(p []byte) (int, error) {
	for {
		n, err := r.port.Read(p)
		if errors.Is(err, serial.ErrTimeout) {
			continue
		}
		if err != nil {
			return n, err
		}
		if n == 0 {
			continue
		}
		return n, nil
	}
}

// ReadLine implements Conn. Both LF and CRLF terminators are accepted.
func (c *SerialConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, serial.ErrClosed) {
			return "", ErrClosed
		}
		if line == "" {
			return "", err
		}
		// Partial final line before EOF still gets delivered.
	}
	return trimEOL(line), nil
}

// Write implements Conn.
func (c *SerialConn) Write(p []byte) (int, error) {
	n, err := c.port.Write(p)
	if errors.Is(err, serial.ErrClosed) {
		return n, ErrClosed
	}
	return n, err
}

// Close implements Conn.
func (c *SerialConn) Close() error {
	return c.port.Close()
}

// Name implements Conn.
func (c *SerialConn) Name() string {
	return c.port.Device()
}

var _ io.Writer = (*SerialConn)(nil)

// trimEOL strips a trailing CR, LF, or CRLF.
func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
