package protocol

import (
	"regexp"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

// Line framing
const (
	LineTerminator = "\n"
	MaxLineLength  = 4096
)

// Status codes. Codes are compared as whole tokens, never by arithmetic on their value.
const (
	StatusOK         = 200 // command accepted, data port announced
	StatusGreeting   = 220 // service ready
	StatusGoodbye    = 221 // closing control connection
	StatusComplete   = 226 // transfer finished, data connection closed
	StatusNoDataPort = 425 // no data port could be opened
	StatusSyntax     = 500 // malformed or unknown command
	StatusNotFound   = 550 // file absent, filename rejected or transfer failed
)

// Keywords that appear in command and response lines
const (
	KeywordOK    = "OK"
	KeywordReady = "READY"
	KeywordPort  = "PORT"
	KeywordSize  = "SIZE"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateFilename checks that name is a single path component drawn from the
// conservative character set accepted by the server.
func ValidateFilename(name string) error {
	if name == "" {
		return errors.NewValidationError("filename", name, "filename is required")
	}
	if len(name) > 255 {
		return errors.NewValidationError("filename", name, "filename is too long")
	}
	if name == "." || name == ".." {
		return errors.NewValidationError("filename", name, "filename must name a file")
	}
	if !filenamePattern.MatchString(name) {
		return errors.NewValidationError("filename", name, "filename may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}
