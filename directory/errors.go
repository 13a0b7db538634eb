package directory

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNotFound means the target directory (or its parent) does not exist.
	KindNotFound Kind = iota + 1
	// KindForbidden means the caller's role is insufficient.
	KindForbidden
	// KindConflict means a conditional write predicate failed.
	KindConflict
	// KindInvalidRequest means the payload violates structural constraints.
	KindInvalidRequest
	// KindTransient means the store failed for infrastructure reasons; retry is safe.
	KindTransient
	// KindFatal means a design-time invariant was found broken, such as a parent cycle.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidRequest:
		return "invalid request"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. Match them with errors.Is.
var (
	ErrNotFound       = errors.New("directory: not found")
	ErrForbidden      = errors.New("directory: forbidden")
	ErrConflict       = errors.New("directory: conflict")
	ErrInvalidRequest = errors.New("directory: invalid request")
	ErrTransient      = errors.New("directory: transient store failure")
	ErrFatal          = errors.New("directory: invariant violation")
)

var sentinels = map[Kind]error{
	KindNotFound:       ErrNotFound,
	KindForbidden:      ErrForbidden,
	KindConflict:       ErrConflict,
	KindInvalidRequest: ErrInvalidRequest,
	KindTransient:      ErrTransient,
	KindFatal:          ErrFatal,
}

// Error is the failure type returned by every operation in this package and
// by Repository implementations.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Errorf builds an *Error. err is the underlying cause and may be nil.
func Errorf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func notFound(op, format string, args ...any) error {
	return Errorf(KindNotFound, op, nil, format, args...)
}

func forbidden(op, format string, args ...any) error {
	return Errorf(KindForbidden, op, nil, format, args...)
}

func conflict(op, format string, args ...any) error {
	return Errorf(KindConflict, op, nil, format, args...)
}

func invalid(op, format string, args ...any) error {
	return Errorf(KindInvalidRequest, op, nil, format, args...)
}
