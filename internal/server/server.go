package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/datachan"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/discovery"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/filesystem"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/network"
)

// Server accepts control connections and runs one session per connection.
// Sessions share only the file store and the data port allocator.
type Server struct {
	cfg   *config.Config
	store *filesystem.Store
	ports *datachan.PortAllocator

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New prepares a server for cfg, creating the managed root if needed
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewValidationError("config", cfg.String(), err.Error())
	}

	store, err := filesystem.NewStore(cfg.RootDir, filesystem.HashAlgorithm(cfg.HashAlgorithm))
	if err != nil {
		return nil, err
	}

	if err := store.CleanStaging(); err != nil {
		slog.Warn("Failed to clean staging area", "error", err)
	}

	return &Server{
		cfg:   cfg,
		store: store,
		ports: datachan.NewPortAllocator(cfg.DataHost, cfg.DataPortMin, cfg.DataPortMax),
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Run starts the server with the given configuration and blocks until
// SIGINT or SIGTERM
func Run(cfg *config.Config) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}

// ListenAndServe listens on the configured control address, advertises it
// when enabled and serves until ctx is cancelled or Close is called
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return errors.NewNetworkError("listen", s.cfg.ListenAddress, err)
	}

	slog.Info("Starting server", "address", listener.Addr().String(), "root", s.store.Root())

	if s.cfg.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		shutdown, err := discovery.Advertise(port, s.store.Root())
		if err != nil {
			slog.Warn("Failed to advertise control endpoint", "error", err)
		} else {
			defer shutdown()
		}
	}

	return s.Serve(ctx, listener)
}

// Serve accepts control connections on ln. It returns nil once the server is
// closed, either through Close or by cancelling ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = network.LimitListener(ln, s.cfg.MaxSessions)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	slog.Info("Server ready to accept connections", "address", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				slog.Warn("Temporary accept failure", "error", err)
				continue
			}
			return errors.NewNetworkError("accept", ln.Addr().String(), err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// Addr returns the control listener address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, closes every live control connection and waits for
// the sessions to return
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Server stopped")
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
