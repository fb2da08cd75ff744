package server

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// wireConn frames the line-oriented chat protocol over one TCP socket.
//
// Each read obtains up to len(buf) bytes and treats them as a single
// whitespace-trimmed UTF-8 command line. Commands longer than the buffer,
// or pipelined commands sharing one read, are not supported; this is
// accepted protocol behavior.
type wireConn struct {
	conn net.Conn
	buf  []byte

	// wmu serializes writes to the peer: the session driver and handlers
	// running in other sessions may address the same socket concurrently,
	// and writes to a single peer must retain program order.
	wmu sync.Mutex
}

func newWireConn(conn net.Conn, bufSize int) *wireConn {
	return &wireConn{
		conn: conn,
		buf:  make([]byte, bufSize),
	}
}

// readCommand performs one read and returns the trimmed command line.
// A read of zero bytes (peer EOF) surfaces as the underlying error.
func (c *wireConn) readCommand() (string, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		return strings.TrimSpace(string(c.buf[:n])), nil
	}
	if err != nil {
		return "", fmt.Errorf("read from %s: %w", c.conn.RemoteAddr(), err)
	}
	return "", nil
}

// write sends text to the peer, appending a single newline when lineBreak
// is set. The write is flushed before returning; net.Conn writes are
// unbuffered.
func (c *wireConn) write(text string, lineBreak bool) error {
	if lineBreak {
		text += "\n"
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.conn.Write([]byte(text)); err != nil {
		return fmt.Errorf("write to %s: %w", c.conn.RemoteAddr(), err)
	}
	return nil
}

// WriteLine implements chat.Conn for the delivery engine.
func (c *wireConn) WriteLine(text string) error {
	return c.write(text, true)
}

// Close closes the underlying socket.
func (c *wireConn) Close() error {
	return c.conn.Close()
}
