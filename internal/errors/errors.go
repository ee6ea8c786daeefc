package errors

import (
	"errors"
	"fmt"
)

// Error types for different categories of failures
var (
	ErrNetwork      = errors.New("network error")
	ErrFileSystem   = errors.New("file system error")
	ErrProtocol     = errors.New("protocol error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrSizeMismatch = errors.New("transfer size mismatch")
	ErrExhausted    = errors.New("resource exhausted")
	ErrClosed       = errors.New("channel closed")
)

// Channel names used by NetworkError
const (
	ChannelControl = "control"
	ChannelData    = "data"
)

// NetworkError represents a failure on the control or data socket
type NetworkError struct {
	Op      string
	Addr    string
	Channel string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("network error on %s channel during %s to %s: %v", e.Channel, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("network error during %s to %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// FileSystemError represents file system-related errors
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("file system error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

func (e *FileSystemError) Is(target error) bool {
	return target == ErrFileSystem
}

// ProtocolError represents a malformed command or response line
type ProtocolError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error during %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s='%v': %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned when a requested file is absent from the managed root
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %s not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SizeMismatchError reports a transfer that moved a different number of bytes than declared
type SizeMismatchError struct {
	Name     string
	Declared int64
	Moved    int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("transfer of %s incomplete: moved %d of %d bytes", e.Name, e.Moved, e.Declared)
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// ExhaustedError is returned when no data port in the configured range is free
type ExhaustedError struct {
	Resource string
	Min      int
	Max      int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free %s in range %d-%d", e.Resource, e.Min, e.Max)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// StatusError carries a non-success status line received from the server
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s rejected by server: %d %s", e.Op, e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case 550:
		return target == ErrNotFound
	case 425:
		return target == ErrExhausted
	case 500:
		return target == ErrProtocol
	}
	return false
}

// Helper functions for creating errors

func NewNetworkError(op, addr string, err error) error {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

func NewChannelError(channel, op, addr string, err error) error {
	return &NetworkError{Op: op, Addr: addr, Channel: channel, Err: err}
}

func NewFileSystemError(op, path string, err error) error {
	return &FileSystemError{Op: op, Path: path, Err: err}
}

func NewProtocolError(op, message string, err error) error {
	return &ProtocolError{Op: op, Message: message, Err: err}
}

func NewValidationError(field string, value interface{}, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func NewNotFoundError(name string) error {
	return &NotFoundError{Name: name}
}

func NewSizeMismatchError(name string, declared, moved int64) error {
	return &SizeMismatchError{Name: name, Declared: declared, Moved: moved}
}

func NewExhaustedError(resource string, min, max int) error {
	return &ExhaustedError{Resource: resource, Min: min, Max: max}
}

func NewStatusError(op string, code int, message string) error {
	return &StatusError{Op: op, Code: code, Message: message}
}

// IsControlFailure reports whether err is an I/O failure on a control channel
func IsControlFailure(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Channel == ChannelControl
	}
	return errors.Is(err, ErrClosed)
}
