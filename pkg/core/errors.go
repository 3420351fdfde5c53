package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures the way callers need to react to them.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindPartialCascade    Kind = "partial_cascade"
	KindTransient         Kind = "transient"
)

// Common errors. An *Error matches the sentinel of its Kind with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("node not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPartialCascade    = errors.New("partial cascade failure")
	ErrTransient         = errors.New("transient failure")
	ErrReadOnly          = errors.New("repository is in read-only mode")
)

var sentinels = map[Kind]error{
	KindUnauthorized:      ErrUnauthorized,
	KindNotFound:          ErrNotFound,
	KindInvalidTransition: ErrInvalidTransition,
	KindPartialCascade:    ErrPartialCascade,
	KindTransient:         ErrTransient,
}

// Error is the structured error surfaced at the service and client boundaries.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Msg  string
	Err  error

	// Applied and Failed list node IDs touched by a cascade that stopped half way.
	Applied []string
	Failed  []string
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.ID != "" {
		b.WriteString(" (")
		b.WriteString(e.ID)
		b.WriteString(")")
	}
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, " [%d applied, %d failed]", len(e.Applied), len(e.Failed))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf classifies any error. Unknown errors are transient: they are retryable
// because every operation is idempotent at the target-state level.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindTransient
}

// AsError normalizes err into an *Error carrying op and id.
func AsError(op, id string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTransient, op, id, err)
	}
	return Wrap(KindOf(err), op, id, err)
}

// Retryable reports whether re-issuing the operation may succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
