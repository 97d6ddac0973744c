package script

import (
	"errors"
	"fmt"
)

// Sentinels for the failure kinds of a script run. Every *Error matches
// exactly one of them with errors.Is.
var (
	ErrConfig       = errors.New("invalid capability declaration")
	ErrLoad         = errors.New("script failed to load")
	ErrParse        = errors.New("malformed command")
	ErrUnauthorized = errors.New("command not authorized")
	ErrExecution    = errors.New("script execution failed")
)

// Kind classifies a script failure.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindLoad
	KindParse
	KindUnauthorized
	KindExecution
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindLoad:
		return ErrLoad
	case KindParse:
		return ErrParse
	case KindUnauthorized:
		return ErrUnauthorized
	default:
		return ErrExecution
	}
}

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindLoad:
		return "load"
	case KindParse:
		return "parse"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "execution"
	}
}

// Error describes a failed script run. Entry is the entry point that was
// running and Command, when set, the raw JSON of the offending command.
type Error struct {
	Kind    Kind
	Entry   string
	Command string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v in %q", e.Kind.sentinel(), e.Entry)
	if e.Command != "" {
		msg += fmt.Sprintf(" (command %s)", e.Command)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, entry string, command []byte, err error) *Error {
	return &Error{Kind: kind, Entry: entry, Command: string(command), Err: err}
}
