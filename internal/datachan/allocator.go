// Package datachan implements the one-shot data connections that carry
// listing and file bytes next to a control session.
package datachan

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/network"
)

// PortAllocator hands out listening sockets from a bounded port range.
// When both bounds are zero the operating system picks the port.
type PortAllocator struct {
	host string
	min  int
	max  int

	mu    sync.Mutex
	inUse map[int]struct{}
}

// NewPortAllocator creates an allocator binding on host within [min, max]
func NewPortAllocator(host string, min, max int) *PortAllocator {
	return &PortAllocator{
		host:  host,
		min:   min,
		max:   max,
		inUse: make(map[int]struct{}),
	}
}

// Allocate binds and listens on the lowest free port of the range. Ports
// still held by another Listener, or that the OS refuses, are skipped.
func (a *PortAllocator) Allocate() (*Listener, error) {
	if a.min == 0 && a.max == 0 {
		return a.listen(0)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.min; port <= a.max; port++ {
		if _, busy := a.inUse[port]; busy {
			continue
		}

		ln, err := a.listen(port)
		if err != nil {
			slog.Debug("Data port unavailable", "port", port, "error", err)
			continue
		}
		a.inUse[port] = struct{}{}
		return ln, nil
	}

	return nil, errors.NewExhaustedError("data port", a.min, a.max)
}

// InUse returns the number of ports currently held
func (a *PortAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}

func (a *PortAllocator) release(port int) {
	a.mu.Lock()
	delete(a.inUse, port)
	a.mu.Unlock()
}

func (a *PortAllocator) listen(port int) (*Listener, error) {
	addr := net.JoinHostPort(a.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.NewChannelError(errors.ChannelData, "listen", addr, err)
	}

	l := &Listener{ln: ln, port: ln.Addr().(*net.TCPAddr).Port}
	if port != 0 {
		l.owner = a
	}
	return l, nil
}

// Listener is a data socket that accepts exactly one peer
type Listener struct {
	ln    net.Listener
	port  int
	owner *PortAllocator

	once sync.Once
}

// Port returns the bound port announced to the client
func (l *Listener) Port() int {
	return l.port
}

// Accept waits up to timeout for the single peer. The listening socket is
// closed and the port released before Accept returns, whatever the outcome.
func (l *Listener) Accept(timeout time.Duration) (net.Conn, error) {
	defer l.Close()

	if tl, ok := l.ln.(*net.TCPListener); ok && timeout > 0 {
		tl.SetDeadline(time.Now().Add(timeout))
	}

	conn, err := l.ln.Accept()
	if err != nil {
		return nil, errors.NewChannelError(errors.ChannelData, "accept", l.ln.Addr().String(), err)
	}

	if err := network.OptimizeDataConnection(conn); err != nil {
		slog.Debug("Failed to tune data connection", "error", err)
	}
	return conn, nil
}

// Close stops listening and releases the port. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.ln.Close()
		if l.owner != nil {
			l.owner.release(l.port)
		}
	})
	return err
}

// Dial connects to a data port announced by the server
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.NewChannelError(errors.ChannelData, "dial", addr, err)
	}

	if err := network.OptimizeDataConnection(conn); err != nil {
		slog.Debug("Failed to tune data connection", "error", err)
	}
	return conn, nil
}
