package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/filesystem"
)

// SetupLogger initializes structured logging with file and console output.
// name prefixes the log file; a nil console logs to the file only.
func SetupLogger(dir, name string, verbose bool, console io.Writer) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	}

	// Create logs directory if it doesn't exist
	if err := filesystem.EnsureDirectoryExists(dir); err != nil {
		if console != nil {
			slog.SetDefault(slog.New(slog.NewTextHandler(console, opts)))
		}
		return err
	}

	logFileName := filepath.Join(dir, name+"_"+time.Now().Format("20060102_150405")+".log")

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, config.FilePerms)
	if err != nil {
		if console != nil {
			slog.SetDefault(slog.New(slog.NewTextHandler(console, opts)))
			slog.Warn("Failed to create log file, using console only", "error", err)
		}
		return nil
	}

	var out io.Writer = logFile
	if console != nil {
		out = io.MultiWriter(console, logFile)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))

	slog.Debug("Logging initialized", "file", logFileName)
	return nil
}

// LogConfig logs the current configuration
func LogConfig(cfg *config.Config) {
	mode := "Client"
	if cfg.IsServer {
		mode = "Server"
	}

	slog.Info("Configuration loaded",
		"mode", mode,
		"buffer_size_kb", float64(cfg.BufferSize)/1024,
		"timeout_seconds", int(cfg.Timeout.Seconds()),
		"hash_algorithm", cfg.HashAlgorithm)

	if cfg.IsServer {
		dataPorts := fmt.Sprintf("%d-%d", cfg.DataPortMin, cfg.DataPortMax)
		if cfg.UsesOSPorts() {
			dataPorts = "os-assigned"
		}
		slog.Info("Server configuration",
			"listen_address", cfg.ListenAddress,
			"root", cfg.RootDir,
			"data_ports", dataPorts,
			"max_sessions", cfg.MaxSessions,
			"listing_format", cfg.ListingFormat,
			"idle_timeout_seconds", int(cfg.IdleTimeout.Seconds()))
	} else {
		slog.Info("Client configuration",
			"server_address", cfg.ServerAddress,
			"download_dir", cfg.DownloadDir)
	}
}

// LogError logs an error with attributes drawn from its type
func LogError(logger *slog.Logger, err error, context string) {
	if logger == nil {
		logger = slog.Default()
	}

	switch e := err.(type) {
	case *errors.NetworkError:
		logger.Error("Network error",
			"context", context,
			"operation", e.Op,
			"address", e.Addr,
			"channel", e.Channel,
			"error", e.Err,
			"error_type", "network")
	case *errors.FileSystemError:
		logger.Error("File system error",
			"context", context,
			"operation", e.Op,
			"error", e.Err,
			"error_type", "filesystem")
	case *errors.ProtocolError:
		logger.Warn("Protocol error",
			"context", context,
			"operation", e.Op,
			"message", e.Message,
			"error_type", "protocol")
	case *errors.ValidationError:
		logger.Warn("Validation error",
			"context", context,
			"field", e.Field,
			"message", e.Message,
			"error_type", "validation")
	case *errors.NotFoundError:
		logger.Info("File not found",
			"context", context,
			"file", e.Name,
			"error_type", "not_found")
	case *errors.SizeMismatchError:
		logger.Warn("Transfer incomplete",
			"context", context,
			"file", e.Name,
			"declared_bytes", e.Declared,
			"moved_bytes", e.Moved,
			"error_type", "size_mismatch")
	case *errors.ExhaustedError:
		logger.Warn("Resource exhausted",
			"context", context,
			"resource", e.Resource,
			"range", fmt.Sprintf("%d-%d", e.Min, e.Max),
			"error_type", "exhausted")
	case *errors.StatusError:
		logger.Warn("Command rejected",
			"context", context,
			"operation", e.Op,
			"code", e.Code,
			"message", e.Message,
			"error_type", "status")
	default:
		logger.Error("Unhandled error",
			"context", context,
			"error", err,
			"error_type", "unknown")
	}
}

// LogTransferComplete logs successful transfer completion
func LogTransferComplete(logger *slog.Logger, op, filename string, size int64, duration time.Duration) {
	if logger == nil {
		logger = slog.Default()
	}

	var rate float64
	if duration > 0 {
		rate = float64(size) / (1024 * 1024) / duration.Seconds()
	}
	logger.Info("Transfer completed successfully",
		"op", op,
		"file", filename,
		"total_bytes", size,
		"duration_ms", duration.Milliseconds(),
		"average_rate_mbps", fmt.Sprintf("%.2f", rate))
}

// LogSessionStart logs the start of a control session
func LogSessionStart(logger *slog.Logger) {
	logger.Info("Session started", "session_start", time.Now().Format("15:04:05"))
}

// LogSessionEnd logs the end of a control session
func LogSessionEnd(logger *slog.Logger, commands int, totalBytes int64, duration time.Duration, err error) {
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
	}

	logger.Info("Session ended",
		"status", status,
		"commands", commands,
		"total_bytes_transferred", totalBytes,
		"session_duration_seconds", int(duration.Seconds()),
		"session_end", time.Now().Format("15:04:05"))
}
