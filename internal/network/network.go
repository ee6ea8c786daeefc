package network

import (
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/netutil"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

const (
	// KeepAliveIdle is the idle time before the first keepalive packet
	KeepAliveIdle = 30 * time.Second
	// KeepAliveInterval is the time between unanswered keepalives
	KeepAliveInterval = 10 * time.Second
	// KeepAliveCount is the number of unanswered keepalives before the connection is dropped
	KeepAliveCount = 4

	// TCPBufferSize is the socket buffer requested for data connections
	TCPBufferSize = 1024 * 1024
)

// OptimizeTCPConnection applies TCP options to a control or data connection
func OptimizeTCPConnection(conn net.Conn) error {
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return nil // net.Pipe and friends in tests
	}

	// Keep-alive detects control peers that vanished without a FIN
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return errors.NewNetworkError("set_keepalive", conn.RemoteAddr().String(), err)
	}

	if err := tcpConn.SetKeepAlivePeriod(KeepAliveIdle); err != nil {
		slog.Warn("Failed to set TCP keepalive period", "error", err)
	}

	if err := setKeepAliveProbes(tcpConn, KeepAliveIdle, KeepAliveInterval, KeepAliveCount); err != nil {
		slog.Debug("Failed to tune TCP keepalive tuning", "error", err)
	}

	// Status lines are small and must not wait behind Nagle
	if err := tcpConn.SetNoDelay(true); err != nil {
		slog.Warn("Failed to disable Nagle's algorithm", "error", err)
	}

	return nil
}

// OptimizeDataConnection applies OptimizeTCPConnection plus larger socket buffers
func OptimizeDataConnection(conn net.Conn) error {
	if err := OptimizeTCPConnection(conn); err != nil {
		return err
	}

	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return nil
	}

	if err := tcpConn.SetReadBuffer(TCPBufferSize); err != nil {
		slog.Warn("Failed to set TCP read buffer", "error", err)
	}

	if err := tcpConn.SetWriteBuffer(TCPBufferSize); err != nil {
		slog.Warn("Failed to set TCP write buffer", "error", err)
	}

	return nil
}

// LimitListener caps the number of simultaneously accepted connections.
// A limit of zero or less returns ln unchanged.
func LimitListener(ln net.Listener, limit int) net.Listener {
	if limit <= 0 {
		return ln
	}
	return netutil.LimitListener(ln, limit)
}
