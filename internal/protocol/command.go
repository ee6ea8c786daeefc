package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

// Kind identifies a control-channel request
type Kind int

const (
	KindUnknown Kind = iota
	KindList
	KindGet
	KindPut
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "LS"
	case KindGet:
		return "GET"
	case KindPut:
		return "PUT"
	case KindExit:
		return "EXIT"
	}
	return "UNKNOWN"
}

// Command is a parsed request line. Filename and Size are only meaningful
// for the kinds that carry them.
type Command struct {
	Kind     Kind
	Filename string
	Size     int64
	Raw      string
}

// List builds an LS request
func List() Command {
	return Command{Kind: KindList}
}

// Get builds a GET request for name
func Get(name string) Command {
	return Command{Kind: KindGet, Filename: name}
}

// Put builds a PUT request announcing size bytes for name
func Put(name string, size int64) Command {
	return Command{Kind: KindPut, Filename: name, Size: size}
}

// Exit builds an EXIT request
func Exit() Command {
	return Command{Kind: KindExit}
}

// String renders the command in its canonical wire form, without terminator
func (c Command) String() string {
	switch c.Kind {
	case KindList, KindExit:
		return c.Kind.String()
	case KindGet:
		return "GET " + c.Filename
	case KindPut:
		return fmt.Sprintf("PUT %s %s %d", c.Filename, KeywordSize, c.Size)
	}
	return c.Raw
}

// ParseCommand parses one control line. An unrecognized verb is not an error:
// it yields a KindUnknown command so the session can answer and carry on.
func ParseCommand(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return Command{}, errors.NewProtocolError("parse_command", "empty command", nil)
	}

	cmd := Command{Raw: raw}

	switch strings.ToUpper(parts[0]) {
	case "LS":
		cmd.Kind = KindList
	case "EXIT":
		cmd.Kind = KindExit
	case "GET":
		if len(parts) != 2 {
			return Command{}, errors.NewProtocolError("parse_command", "usage: GET <filename>", nil)
		}
		if err := ValidateFilename(parts[1]); err != nil {
			return Command{}, err
		}
		cmd.Kind = KindGet
		cmd.Filename = parts[1]
	case "PUT":
		if len(parts) != 4 || !strings.EqualFold(parts[2], KeywordSize) {
			return Command{}, errors.NewProtocolError("parse_command", "usage: PUT <filename> SIZE <n>", nil)
		}
		size, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || size < 0 {
			return Command{}, errors.NewProtocolError("parse_command", fmt.Sprintf("invalid size: %s", parts[3]), err)
		}
		if err := ValidateFilename(parts[1]); err != nil {
			return Command{}, err
		}
		cmd.Kind = KindPut
		cmd.Filename = parts[1]
		cmd.Size = size
	default:
		cmd.Kind = KindUnknown
	}

	return cmd, nil
}
