package client

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/control"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/datachan"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/filesystem"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/logging"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/network"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/progress"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/protocol"
)

// State is the position of the client in the command cycle
type State int

const (
	StateConnected State = iota
	StateAwaitingCommand
	StateAwaitingData
	StateAwaitingTerminal
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateAwaitingData:
		return "awaiting_data"
	case StateAwaitingTerminal:
		return "awaiting_terminal"
	}
	return "closed"
}

// Client drives one control connection. It is not safe for concurrent use;
// commands are issued one at a time.
type Client struct {
	cfg   *config.Config
	ch    *control.Channel
	host  string
	state State

	// progressOut receives progress bars; nil disables them
	progressOut io.Writer
}

// Dial connects to the configured server and consumes its greeting
func Dial(ctx context.Context, cfg *config.Config) (*Client, error) {
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.ServerAddress)
	if err != nil {
		return nil, errors.NewChannelError(errors.ChannelControl, "dial", cfg.ServerAddress, err)
	}

	if err := network.OptimizeTCPConnection(conn); err != nil {
		slog.Warn("Failed to optimize TCP connection", "error", err)
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return nil, errors.NewNetworkError("split_host_port", conn.RemoteAddr().String(), err)
	}

	c := &Client{
		cfg:         cfg,
		ch:          control.New(conn, cfg.Timeout),
		host:        host,
		state:       StateConnected,
		progressOut: progress.Console(cfg.ShowProgress),
	}

	greeting, err := c.ch.Recv()
	if err != nil {
		c.Close()
		return nil, err
	}
	if !greeting.Is(protocol.StatusGreeting) {
		c.Close()
		return nil, errors.NewStatusError("connect", greeting.Code, greeting.Message())
	}

	slog.Info("Connected to server", "server", cfg.ServerAddress, "greeting", greeting.Message())
	c.state = StateAwaitingCommand
	return c, nil
}

// State returns the current protocol state
func (c *Client) State() State {
	return c.state
}

// List returns the server's listing payload
func (c *Client) List(ctx context.Context) (string, error) {
	resp, err := c.begin(protocol.List())
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	transfer := c.newTransfer("LS", datachan.Unbounded, nil)
	dataErr := c.receive(ctx, resp, transfer, &buf)

	if err := c.finish("LS", dataErr); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Get streams name into dst and returns the number of bytes received.
// It succeeds only when exactly the announced SIZE arrived and the server
// confirmed with 226.
func (c *Client) Get(ctx context.Context, name string, dst io.Writer) (int64, error) {
	resp, err := c.begin(protocol.Get(name))
	if err != nil {
		return 0, err
	}

	size, err := resp.Size()
	if err != nil {
		// without a size there is nothing to check the payload against; the
		// server still owes a terminal line once its accept times out
		return 0, c.finish("GET", err)
	}

	reporter := progress.NewReporter(name, size, c.progressOut)
	transfer := c.newTransfer(name, size, reporter)
	dataErr := c.receive(ctx, resp, transfer, dst)
	reporter.Finish(dataErr == nil)

	err = c.finish("GET", dataErr)
	logTransfer("GET", name, reporter, err)
	return transfer.Moved, err
}

// Download fetches name into dir under its base name. A failed download
// leaves any existing local file untouched.
func (c *Client) Download(ctx context.Context, name, dir string) (string, int64, error) {
	local := filepath.Join(dir, filepath.Base(name))

	if err := filesystem.EnsureDirectoryExists(dir); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*.part")
	if err != nil {
		return "", 0, errors.NewFileSystemError("create", dir, err)
	}

	n, err := c.Get(ctx, name, tmp)
	if err == nil {
		// logged for comparison with the digest the server recorded on upload
		algorithm := filesystem.HashAlgorithm(c.cfg.HashAlgorithm)
		digest, hashErr := filesystem.CalculateFileHashWithAlgorithm(tmp, algorithm)
		if hashErr != nil {
			err = hashErr
		} else {
			slog.Info("Downloaded file digest", "file", local, "algorithm", algorithm, "digest", digest)
		}
	}
	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = errors.NewFileSystemError("close", tmp.Name(), closeErr)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", n, err
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return "", n, errors.NewFileSystemError("rename", local, err)
	}
	return local, n, nil
}

// Put sends size bytes from src to the server under name
func (c *Client) Put(ctx context.Context, name string, src io.Reader, size int64) error {
	resp, err := c.begin(protocol.Put(name, size))
	if err != nil {
		return err
	}

	reporter := progress.NewReporter(name, size, c.progressOut)
	transfer := c.newTransfer(name, size, reporter)
	dataErr := c.send(ctx, resp, transfer, src)
	reporter.Finish(dataErr == nil)

	err = c.finish("PUT", dataErr)
	logTransfer("PUT", name, reporter, err)
	return err
}

// Upload sends the local file at path under its base name and returns the
// number of bytes sent
func (c *Client) Upload(ctx context.Context, path string) (int64, error) {
	info, err := filesystem.GetFileInfo(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir {
		return 0, errors.NewValidationError("path", path, "cannot transfer directories")
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, errors.NewFileSystemError("open", path, err)
	}
	defer file.Close()

	algorithm := filesystem.HashAlgorithm(c.cfg.HashAlgorithm)
	hasher, err := filesystem.NewHasher(algorithm)
	if err != nil {
		return 0, err
	}

	name := filepath.Base(path)
	if err := c.Put(ctx, name, io.TeeReader(file, hasher), info.Size); err != nil {
		return 0, err
	}

	slog.Info("Uploaded file digest", "file", name, "algorithm", algorithm, "digest", hex.EncodeToString(hasher.Sum(nil)))
	return info.Size, nil
}

// Exit says goodbye and closes the control connection. The 221 reply is
// read on a best-effort basis.
func (c *Client) Exit() error {
	if c.state == StateClosed {
		return nil
	}

	err := c.ch.SendLine(protocol.Exit().String())
	if err == nil {
		if resp, recvErr := c.ch.Recv(); recvErr == nil && !resp.Is(protocol.StatusGoodbye) {
			slog.Debug("Unexpected reply to EXIT", "reply", resp.String())
		}
	}

	c.Close()
	return err
}

// Close drops the control connection without EXIT
func (c *Client) Close() error {
	c.state = StateClosed
	return c.ch.Close()
}

// begin sends cmd and reads the first reply. A non-200 reply aborts only this
// command.
func (c *Client) begin(cmd protocol.Command) (protocol.Response, error) {
	if c.state == StateClosed {
		return protocol.Response{}, errors.NewChannelError(errors.ChannelControl, cmd.Kind.String(), c.cfg.ServerAddress, errors.ErrClosed)
	}

	if err := c.ch.SendLine(cmd.String()); err != nil {
		return protocol.Response{}, c.fail(err)
	}

	resp, err := c.ch.Recv()
	if err != nil {
		return protocol.Response{}, c.fail(err)
	}

	if !resp.Is(protocol.StatusOK) {
		return resp, errors.NewStatusError(cmd.Kind.String(), resp.Code, resp.Message())
	}

	c.state = StateAwaitingData
	return resp, nil
}

// finish reads the terminal line. After a data failure the server may still
// be waiting out its accept timeout, so the read is given longer.
func (c *Client) finish(op string, dataErr error) error {
	c.state = StateAwaitingTerminal

	if dataErr != nil {
		c.ch.SetTimeout(2 * c.cfg.Timeout)
		defer c.ch.SetTimeout(c.cfg.Timeout)
	}

	resp, err := c.ch.Recv()
	if err != nil {
		err = c.fail(err)
		if dataErr != nil {
			return dataErr
		}
		return err
	}
	c.state = StateAwaitingCommand

	if dataErr != nil {
		slog.Debug("Data transfer failed", "op", op, "terminal", resp.String(), "error", dataErr)
		return dataErr
	}
	if !resp.Is(protocol.StatusComplete) {
		return errors.NewStatusError(op, resp.Code, resp.Message())
	}
	return nil
}

// fail moves the client to Closed when err came from the control channel
func (c *Client) fail(err error) error {
	if errors.IsControlFailure(err) {
		c.Close()
		return err
	}
	c.state = StateAwaitingCommand
	return err
}

// logTransfer records the outcome of a GET or PUT from its reporter
func logTransfer(op, name string, reporter *progress.Reporter, err error) {
	moved, percent, elapsed := reporter.GetCurrentStats()
	if err != nil {
		slog.Warn("Transfer stopped",
			"op", op,
			"file", name,
			"transferred_bytes", moved,
			"percent", fmt.Sprintf("%.1f", percent),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err)
		return
	}
	logging.LogTransferComplete(nil, op, name, moved, elapsed)
}

func (c *Client) newTransfer(name string, declared int64, reporter io.Writer) *datachan.Transfer {
	return &datachan.Transfer{
		Name:       name,
		Declared:   declared,
		BufferSize: c.cfg.BufferSize,
		Timeout:    c.cfg.Timeout,
		Progress:   reporter,
	}
}

func (c *Client) dialData(ctx context.Context, resp protocol.Response) (net.Conn, error) {
	port, err := resp.Port()
	if err != nil {
		return nil, err
	}
	return datachan.Dial(ctx, c.host, port, c.cfg.Timeout)
}

func (c *Client) receive(ctx context.Context, resp protocol.Response, transfer *datachan.Transfer, dst io.Writer) error {
	conn, err := c.dialData(ctx, resp)
	if err != nil {
		return err
	}
	defer conn.Close()

	return transfer.Receive(conn, dst)
}

func (c *Client) send(ctx context.Context, resp protocol.Response, transfer *datachan.Transfer, src io.Reader) error {
	conn, err := c.dialData(ctx, resp)
	if err != nil {
		return err
	}
	// closing the data connection is the end-of-payload signal
	defer conn.Close()

	err = transfer.Send(conn, src)
	var mismatch *errors.SizeMismatchError
	if stderrors.As(err, &mismatch) {
		slog.Warn("Local file shrank during upload", "file", transfer.Name, "declared", mismatch.Declared, "sent", mismatch.Moved)
	}
	return err
}
