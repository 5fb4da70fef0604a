package transport

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// TCPConn is a Conn over a TCP socket. It reaches the mock controller
// during development and networked serial bridges (ser2net and the like)
// in deployments where the rig's controller is not plugged in locally.
type TCPConn struct {
	conn   net.Conn
	reader *bufio.Reader
	addr   string
}

// DialTCP connects to a controller at host:port.
func DialTCP(address string, timeout time.Duration) (*TCPConn, error) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Command bytes must not sit in Nagle buffers while an axis moves.
		tc.SetNoDelay(true)
	}
	return &TCPConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 1024),
		addr:   address,
	}, nil
}

// ReadLine implements Conn.
func (c *TCPConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return trimEOL(line), nil
}

// Write implements Conn.
func (c *TCPConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close implements Conn.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// Name implements Conn.
func (c *TCPConn) Name() string {
	return "tcp://" + c.addr
}
