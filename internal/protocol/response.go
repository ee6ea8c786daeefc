package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

// Response is a decoded status line: a numeric code followed by ordered tokens.
type Response struct {
	Code   int
	Tokens []string
	fields map[string]string
}

// NewResponse builds a response from a code and message tokens
func NewResponse(code int, tokens ...string) Response {
	return Response{Code: code, Tokens: tokens, fields: collectFields(tokens)}
}

// OKPort is the LS acceptance reply
func OKPort(port int) Response {
	return NewResponse(StatusOK, KeywordOK, KeywordPort, strconv.Itoa(port))
}

// OKPortSize is the GET acceptance reply
func OKPortSize(port int, size int64) Response {
	return NewResponse(StatusOK, KeywordOK, KeywordPort, strconv.Itoa(port), KeywordSize, strconv.FormatInt(size, 10))
}

// ReadyPort is the PUT acceptance reply
func ReadyPort(port int) Response {
	return NewResponse(StatusOK, KeywordReady, KeywordPort, strconv.Itoa(port))
}

func Greeting(message string) Response { return withMessage(StatusGreeting, message) }
func Goodbye(message string) Response  { return withMessage(StatusGoodbye, message) }
func Complete(message string) Response { return withMessage(StatusComplete, message) }
func NotFound(message string) Response { return withMessage(StatusNotFound, message) }
func Syntax(message string) Response   { return withMessage(StatusSyntax, message) }

func NoDataPort(message string) Response {
	return withMessage(StatusNoDataPort, message)
}

func withMessage(code int, message string) Response {
	return NewResponse(code, strings.Fields(message)...)
}

// ParseResponse decodes one status line. Only the status code is checked
// here; PORT and SIZE are validated when read through Port and Size, so a
// reply with a bad field still counts as the reply it claims to be.
func ParseResponse(line string) (Response, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Response{}, errors.NewProtocolError("parse_response", "empty response", nil)
	}

	code, err := strconv.Atoi(parts[0])
	if err != nil || code < 100 || code > 999 {
		return Response{}, errors.NewProtocolError("parse_response", fmt.Sprintf("invalid status code %q", parts[0]), err)
	}

	return NewResponse(code, parts[1:]...), nil
}

// collectFields picks up the value following each known keyword
func collectFields(tokens []string) map[string]string {
	fields := make(map[string]string)
	for i := 0; i < len(tokens)-1; i++ {
		key := strings.ToUpper(tokens[i])
		if key == KeywordPort || key == KeywordSize {
			if _, seen := fields[key]; !seen {
				fields[key] = tokens[i+1]
				i++
			}
		}
	}
	return fields
}

// Field returns the raw value that followed keyword in the line
func (r Response) Field(keyword string) (string, bool) {
	v, ok := r.fields[strings.ToUpper(keyword)]
	return v, ok
}

// Port returns the announced data port
func (r Response) Port() (int, error) {
	v, ok := r.fields[KeywordPort]
	if !ok {
		return 0, errors.NewProtocolError("parse_response", "missing PORT field", nil)
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0, errors.NewProtocolError("parse_response", fmt.Sprintf("invalid port %q", v), err)
	}
	return port, nil
}

// Size returns the announced byte count
func (r Response) Size() (int64, error) {
	v, ok := r.fields[KeywordSize]
	if !ok {
		return 0, errors.NewProtocolError("parse_response", "missing SIZE field", nil)
	}
	size, err := strconv.ParseInt(v, 10, 64)
	if err != nil || size < 0 {
		return 0, errors.NewProtocolError("parse_response", fmt.Sprintf("invalid size %q", v), err)
	}
	return size, nil
}

// Message returns the tokens after the code joined by single spaces
func (r Response) Message() string {
	return strings.Join(r.Tokens, " ")
}

// Is reports whether the response carries the given status code
func (r Response) Is(code int) bool {
	return r.Code == code
}

// String renders the line without terminator
func (r Response) String() string {
	if len(r.Tokens) == 0 {
		return strconv.Itoa(r.Code)
	}
	return strconv.Itoa(r.Code) + " " + r.Message()
}
