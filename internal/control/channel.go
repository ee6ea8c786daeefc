// Package control implements the persistent, line-framed control connection
// shared by the client and the server.
package control

import (
	"bufio"
	stderrors "errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/protocol"
)

// Channel exchanges newline-terminated text over a single connection.
// It is owned by one goroutine; the mutex only guards Close racing a blocked read.
type Channel struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	addr    string

	mu     sync.Mutex
	broken bool
	closed bool
}

// New wraps conn. A zero timeout disables per-call deadlines.
func New(conn net.Conn, timeout time.Duration) *Channel {
	return &Channel{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, protocol.MaxLineLength),
		timeout: timeout,
		addr:    conn.RemoteAddr().String(),
	}
}

// RemoteAddr returns the peer address
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetTimeout changes the deadline applied to each subsequent call
func (c *Channel) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendLine writes text followed by a terminator in a single write
func (c *Channel) SendLine(text string) error {
	if err := c.usable(); err != nil {
		return err
	}

	if !strings.HasSuffix(text, protocol.LineTerminator) {
		text += protocol.LineTerminator
	}

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	if _, err := io.WriteString(c.conn, text); err != nil {
		return c.fail("send_line", err)
	}
	return nil
}

// RecvLine blocks until a full line arrives and returns it trimmed.
// A peer close surfaces as an error wrapping io.EOF.
func (c *Channel) RecvLine() (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}

	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}

	// the reader's buffer is MaxLineLength, so a longer line fails with
	// ErrBufferFull before anything beyond it is buffered
	raw, err := c.reader.ReadSlice('\n')
	line := string(raw)
	if err != nil {
		if stderrors.Is(err, bufio.ErrBufferFull) {
			return "", c.fail("recv_line", errors.NewProtocolError("recv_line", "line too long", nil))
		}
		// A final unterminated line is still handed to the caller; the
		// following call reports the close.
		if err == io.EOF && line != "" {
			c.markBroken()
			return strings.TrimSpace(line), nil
		}
		return "", c.fail("recv_line", err)
	}

	return strings.TrimSpace(line), nil
}

// Send writes a status line
func (c *Channel) Send(resp protocol.Response) error {
	return c.SendLine(resp.String())
}

// Recv reads and decodes a status line
func (c *Channel) Recv() (protocol.Response, error) {
	line, err := c.RecvLine()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.ParseResponse(line)
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.broken = true
	return c.conn.Close()
}

func (c *Channel) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return errors.NewChannelError(errors.ChannelControl, "use", c.addr, errors.ErrClosed)
	}
	return nil
}

func (c *Channel) markBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

func (c *Channel) fail(op string, err error) error {
	c.markBroken()
	return errors.NewChannelError(errors.ChannelControl, op, c.addr, err)
}
