package server

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/control"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/datachan"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/filesystem"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/logging"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/network"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/protocol"
)

const (
	msgWelcome        = "Welcome to Simple FTP Server"
	msgGoodbye        = "Goodbye"
	msgListing        = "Listing complete"
	msgTransfer       = "Transfer complete"
	msgStored         = "File stored"
	msgNotFound       = "File not found"
	msgInvalidName    = "Invalid filename"
	msgUnknown        = "Unknown command"
	msgNoDataPort     = "No data port available"
	msgDataFailed     = "Data connection failed"
	msgIncomplete     = "Incomplete upload"
	msgListFailed     = "Unable to list directory"
	msgStoreFailed    = "Unable to store file"
	msgUnavailable    = "File unavailable"
	msgTransferFailed = "Transfer failed"
)

// session is one control connection and the commands it issues. It is owned
// by a single goroutine.
type session struct {
	id     string
	srv    *Server
	ch     *control.Channel
	logger *slog.Logger

	commands int
	bytes    int64
}

// handleConnection handles a single client connection
func (s *Server) handleConnection(conn net.Conn) {
	if err := network.OptimizeTCPConnection(conn); err != nil {
		slog.Warn("Failed to optimize TCP connection", "error", err)
	}

	id := uuid.NewString()
	sess := &session{
		id:     id,
		srv:    s,
		ch:     control.New(conn, s.cfg.IdleTimeout),
		logger: slog.With("session_id", id, "remote_addr", conn.RemoteAddr().String()),
	}
	defer sess.ch.Close()

	sess.run()
}

func (sess *session) run() {
	start := time.Now()
	logging.LogSessionStart(sess.logger)

	err := sess.loop()
	if err != nil && stderrors.Is(err, io.EOF) {
		sess.logger.Info("Connection closed by client")
		err = nil
	}
	if err != nil && !sess.srv.isClosed() {
		logging.LogError(sess.logger, err, "control channel")
	}

	logging.LogSessionEnd(sess.logger, sess.commands, sess.bytes, time.Since(start), err)
}

// loop reads and dispatches commands until EXIT or a control-channel failure
func (sess *session) loop() error {
	if err := sess.ch.Send(protocol.Greeting(msgWelcome)); err != nil {
		return err
	}

	for {
		line, err := sess.ch.RecvLine()
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		sess.commands++
		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			if err := sess.reject(err); err != nil {
				return err
			}
			continue
		}

		sess.logger.Debug("Command received", "command", cmd.Kind.String(), "file", cmd.Filename)

		switch cmd.Kind {
		case protocol.KindList:
			err = sess.handleList()
		case protocol.KindGet:
			err = sess.handleGet(cmd)
		case protocol.KindPut:
			err = sess.handlePut(cmd)
		case protocol.KindExit:
			// the session ends either way; a failed goodbye is still reported
			return sess.ch.Send(protocol.Goodbye(msgGoodbye))
		default:
			sess.logger.Info("Unknown command", "line", cmd.Raw)
			err = sess.ch.Send(protocol.Syntax(msgUnknown))
		}

		// only control-channel failures end the session
		if err != nil {
			return err
		}
	}
}

// reject answers a command that failed to parse
func (sess *session) reject(err error) error {
	logging.LogError(sess.logger, err, "parse command")

	if stderrors.Is(err, errors.ErrValidation) {
		return sess.ch.Send(protocol.NotFound(msgInvalidName))
	}

	var protoErr *errors.ProtocolError
	if stderrors.As(err, &protoErr) {
		return sess.ch.Send(protocol.Syntax(protoErr.Message))
	}
	return sess.ch.Send(protocol.Syntax(msgUnknown))
}

// openData allocates a data listener. On exhaustion the 425 reply is sent
// here and a nil listener is returned.
func (sess *session) openData() (*datachan.Listener, error) {
	ln, err := sess.srv.ports.Allocate()
	if err != nil {
		logging.LogError(sess.logger, err, "allocate data port")
		return nil, sess.ch.Send(protocol.NoDataPort(msgNoDataPort))
	}
	return ln, nil
}

func (sess *session) newTransfer(name string, declared int64) *datachan.Transfer {
	return &datachan.Transfer{
		Name:       name,
		Declared:   declared,
		BufferSize: sess.srv.cfg.BufferSize,
		Timeout:    sess.srv.cfg.Timeout,
	}
}

func (sess *session) handleList() error {
	files, err := sess.srv.store.List()
	if err != nil {
		logging.LogError(sess.logger, err, "LS")
		return sess.ch.Send(protocol.NotFound(msgListFailed))
	}
	payload := filesystem.FormatListing(files, sess.srv.cfg.ListingFormat)

	ln, err := sess.openData()
	if ln == nil {
		return err
	}

	if err := sess.ch.Send(protocol.OKPort(ln.Port())); err != nil {
		ln.Close()
		return err
	}

	conn, err := ln.Accept(sess.srv.cfg.Timeout)
	if err != nil {
		logging.LogError(sess.logger, err, "LS")
		return sess.ch.Send(protocol.NotFound(msgDataFailed))
	}

	transfer := sess.newTransfer("LS", datachan.Unbounded)
	err = transfer.Send(conn, bytes.NewReader(payload))
	conn.Close()
	sess.bytes += transfer.Moved

	if err != nil {
		logging.LogError(sess.logger, err, "LS")
		return sess.ch.Send(protocol.NotFound(msgTransferFailed))
	}

	sess.logger.Debug("Listing sent", "entries", len(files), "bytes", transfer.Moved)
	return sess.ch.Send(protocol.Complete(msgListing))
}

func (sess *session) handleGet(cmd protocol.Command) error {
	file, info, err := sess.srv.store.Open(cmd.Filename)
	if err != nil {
		logging.LogError(sess.logger, err, "GET")
		switch {
		case stderrors.Is(err, errors.ErrNotFound):
			return sess.ch.Send(protocol.NotFound(msgNotFound))
		case stderrors.Is(err, errors.ErrValidation):
			return sess.ch.Send(protocol.NotFound(msgInvalidName))
		}
		return sess.ch.Send(protocol.NotFound(msgUnavailable))
	}
	defer file.Close()

	ln, err := sess.openData()
	if ln == nil {
		return err
	}

	if err := sess.ch.Send(protocol.OKPortSize(ln.Port(), info.Size)); err != nil {
		ln.Close()
		return err
	}

	conn, err := ln.Accept(sess.srv.cfg.Timeout)
	if err != nil {
		logging.LogError(sess.logger, err, "GET")
		return sess.ch.Send(protocol.NotFound(msgDataFailed))
	}

	start := time.Now()
	transfer := sess.newTransfer(cmd.Filename, info.Size)
	err = transfer.Send(conn, file)
	conn.Close()
	sess.bytes += transfer.Moved

	if err != nil {
		logging.LogError(sess.logger, err, "GET")
		return sess.ch.Send(protocol.NotFound(msgTransferFailed))
	}

	logging.LogTransferComplete(sess.logger, "GET", cmd.Filename, transfer.Moved, time.Since(start))
	return sess.ch.Send(protocol.Complete(msgTransfer))
}

func (sess *session) handlePut(cmd protocol.Command) error {
	upload, err := sess.srv.store.Create(cmd.Filename)
	if err != nil {
		logging.LogError(sess.logger, err, "PUT")
		if stderrors.Is(err, errors.ErrValidation) {
			return sess.ch.Send(protocol.NotFound(msgInvalidName))
		}
		return sess.ch.Send(protocol.NotFound(msgStoreFailed))
	}
	// no-op once committed
	defer upload.Abort()

	ln, err := sess.openData()
	if ln == nil {
		return err
	}

	if err := sess.ch.Send(protocol.ReadyPort(ln.Port())); err != nil {
		ln.Close()
		return err
	}

	conn, err := ln.Accept(sess.srv.cfg.Timeout)
	if err != nil {
		logging.LogError(sess.logger, err, "PUT")
		return sess.ch.Send(protocol.NotFound(msgDataFailed))
	}

	start := time.Now()
	transfer := sess.newTransfer(cmd.Filename, cmd.Size)
	err = transfer.Receive(conn, upload)
	conn.Close()
	sess.bytes += transfer.Moved

	if err != nil {
		logging.LogError(sess.logger, err, "PUT")
		upload.Abort()
		return sess.ch.Send(protocol.NotFound(msgIncomplete))
	}

	if err := upload.Commit(); err != nil {
		logging.LogError(sess.logger, err, "PUT")
		return sess.ch.Send(protocol.NotFound(msgStoreFailed))
	}

	logging.LogTransferComplete(sess.logger, "PUT", cmd.Filename, upload.Written(), time.Since(start))
	sess.logger.Info("Stored file digest", "file", cmd.Filename, "algorithm", sess.srv.store.HashAlgorithm(), "digest", upload.Digest())
	return sess.ch.Send(protocol.Complete(msgStored))
}
