package control

import (
	stderrors "errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*Channel, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return New(local, 2*time.Second), remote
}

func TestSendLineAppendsTerminator(t *testing.T) {
	ch, remote := pipe(t)

	go func() {
		ch.SendLine("LS")
		ch.SendLine("EXIT\n")
	}()

	buf := make([]byte, 64)
	n, err := io.ReadAtLeast(remote, buf, len("LS\nEXIT\n"))
	require.NoError(t, err)
	assert.Equal(t, "LS\nEXIT\n", string(buf[:n]))
}

func TestSendLineIsSingleWrite(t *testing.T) {
	ch, remote := pipe(t)

	go ch.Send(protocol.OKPortSize(20001, 42))

	// net.Pipe delivers each Write as a unit, so one Read sees the whole line
	buf := make([]byte, 128)
	n, err := remote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "200 OK PORT 20001 SIZE 42\n", string(buf[:n]))
}

func TestRecvLineAcrossReads(t *testing.T) {
	ch, remote := pipe(t)

	go func() {
		remote.Write([]byte("22"))
		remote.Write([]byte("6 Transfer"))
		remote.Write([]byte(" complete\r"))
		remote.Write([]byte("\n200 OK PORT 1\n"))
	}()

	line, err := ch.RecvLine()
	require.NoError(t, err)
	assert.Equal(t, "226 Transfer complete", line)

	resp, err := ch.Recv()
	require.NoError(t, err)
	port, err := resp.Port()
	require.NoError(t, err)
	assert.Equal(t, 1, port)
}

func TestRecvLineEOF(t *testing.T) {
	ch, remote := pipe(t)

	go func() {
		remote.Write([]byte("221 Goodbye\n"))
		remote.Close()
	}()

	line, err := ch.RecvLine()
	require.NoError(t, err)
	assert.Equal(t, "221 Goodbye", line)

	_, err = ch.RecvLine()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, io.EOF))
	assert.True(t, errors.IsControlFailure(err))

	// the channel refuses further use without touching the socket
	_, err = ch.RecvLine()
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
	assert.True(t, stderrors.Is(ch.SendLine("LS"), errors.ErrClosed))
}

func TestRecvLineUnterminatedTail(t *testing.T) {
	ch, remote := pipe(t)

	go func() {
		remote.Write([]byte("226 done"))
		remote.Close()
	}()

	line, err := ch.RecvLine()
	require.NoError(t, err)
	assert.Equal(t, "226 done", line)

	_, err = ch.RecvLine()
	assert.True(t, errors.IsControlFailure(err))
}

func TestRecvLineTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	ch := New(local, 50*time.Millisecond)
	_, err := ch.RecvLine()
	require.Error(t, err)

	var netErr net.Error
	require.True(t, stderrors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
	assert.True(t, errors.IsControlFailure(err))
}

func TestRecvMalformedResponse(t *testing.T) {
	ch, remote := pipe(t)

	go remote.Write([]byte("OK PORT 5\n226 done\n"))

	_, err := ch.Recv()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrProtocol))
	assert.False(t, errors.IsControlFailure(err))

	// a malformed line does not poison the channel
	resp, err := ch.Recv()
	require.NoError(t, err)
	assert.True(t, resp.Is(protocol.StatusComplete))
}

func TestRecvLineBounded(t *testing.T) {
	ch, remote := pipe(t)

	written := make(chan struct{})
	go func() {
		defer close(written)
		// never terminated; only the closed pipe ends this write
		remote.Write([]byte(strings.Repeat("a", 4*protocol.MaxLineLength)))
	}()

	_, err := ch.RecvLine()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrProtocol))
	assert.True(t, errors.IsControlFailure(err))

	// the channel stopped consuming at the limit
	select {
	case <-written:
		t.Fatal("oversized line was read to the end")
	default:
	}
}

func TestRecvLineAtLimit(t *testing.T) {
	ch, remote := pipe(t)

	line := strings.Repeat("b", protocol.MaxLineLength-1)
	go remote.Write([]byte(line + "\n"))

	got, err := ch.RecvLine()
	require.NoError(t, err)
	assert.Equal(t, line, got)
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, _ := pipe(t)

	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.True(t, stderrors.Is(ch.SendLine("LS"), errors.ErrClosed))
}
