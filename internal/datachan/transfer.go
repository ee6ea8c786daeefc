package datachan

import (
	"io"
	"net"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

// Direction is the way bytes flow for the local side of a transfer
type Direction int

const (
	Send Direction = iota
	Receive
)

func (d Direction) String() string {
	if d == Send {
		return "send"
	}
	return "receive"
}

// Unbounded marks a transfer with no declared size; it ends at EOF.
const Unbounded int64 = -1

// Transfer is one exchange over a data connection. It is created per command
// and never reused.
type Transfer struct {
	Name       string
	Direction  Direction
	Declared   int64
	Moved      int64
	BufferSize int
	Timeout    time.Duration

	// Progress, when set, sees every byte moved
	Progress io.Writer
}

// Send writes the payload from src to conn. A declared transfer writes exactly
// Declared bytes; an unbounded one copies until src is exhausted. The caller
// closes conn, which is what signals EOF to the peer.
func (t *Transfer) Send(conn net.Conn, src io.Reader) error {
	t.Direction = Send
	t.extendDeadline(conn)

	reader := src
	if t.Declared >= 0 {
		reader = io.LimitReader(src, t.Declared)
	}

	n, err := io.CopyBuffer(t.writer(conn), onlyReader{reader}, t.buffer())
	t.Moved = n
	if err != nil {
		return errors.NewChannelError(errors.ChannelData, "send", conn.RemoteAddr().String(), err)
	}

	if t.Declared >= 0 && n != t.Declared {
		return errors.NewSizeMismatchError(t.Name, t.Declared, n)
	}
	return nil
}

// Receive reads from conn into dst until Declared bytes have arrived or the
// peer closes. Fewer bytes than declared is a size mismatch.
func (t *Transfer) Receive(conn net.Conn, dst io.Writer) error {
	t.Direction = Receive
	t.extendDeadline(conn)

	var reader io.Reader = conn
	if t.Declared >= 0 {
		reader = io.LimitReader(conn, t.Declared)
	}

	if t.Progress != nil {
		dst = io.MultiWriter(dst, t.Progress)
	}

	n, err := io.CopyBuffer(onlyWriter{dst}, onlyReader{t.deadlineReader(conn, reader)}, t.buffer())
	t.Moved = n
	if err != nil {
		return errors.NewChannelError(errors.ChannelData, "receive", conn.RemoteAddr().String(), err)
	}

	if t.Declared >= 0 && n != t.Declared {
		return errors.NewSizeMismatchError(t.Name, t.Declared, n)
	}
	return nil
}

func (t *Transfer) buffer() []byte {
	size := t.BufferSize
	if size < 1 {
		size = 32 * 1024
	}
	return make([]byte, size)
}

func (t *Transfer) writer(conn net.Conn) io.Writer {
	var w io.Writer = &deadlineWriter{conn: conn, timeout: t.Timeout}
	if t.Progress != nil {
		w = io.MultiWriter(w, t.Progress)
	}
	return onlyWriter{w}
}

func (t *Transfer) deadlineReader(conn net.Conn, r io.Reader) io.Reader {
	return &deadlineReader{conn: conn, r: r, timeout: t.Timeout}
}

func (t *Transfer) extendDeadline(conn net.Conn) {
	if t.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(t.Timeout))
	}
}

// deadlineWriter pushes the write deadline forward on every chunk so the
// timeout bounds a stall rather than the whole transfer
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}

type deadlineReader struct {
	conn    net.Conn
	r       io.Reader
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.r.Read(p)
}

// onlyWriter and onlyReader hide ReadFrom/WriteTo so io.CopyBuffer uses the
// caller's buffer instead of a fast path with its own chunking.
type onlyWriter struct{ io.Writer }
type onlyReader struct{ io.Reader }
