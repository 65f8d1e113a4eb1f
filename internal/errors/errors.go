// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindParse
	KindConflict
	KindTransport
	KindIO
	KindNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindParse:
		return "parse"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	case KindIO:
		return "io"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is dumpster's structured error. Op names the failing operation the
// way os.PathError names a syscall (e.g. "store.InsertEvent"), and Attrs
// carries structured context in slog's own Attr type so a caller can splat
// GetAttributes straight into a Logger call instead of reshaping a map
// first.
type Error struct {
	Kind  Kind
	Op    string
	Msg   string
	Err   error
	Attrs []slog.Attr
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a dumpster *Error of the same Kind, so a
// caller can test against a bare &Error{Kind: KindConflict} sentinel with
// errors.Is instead of reaching for GetKind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a
// formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Op records the operation that was being attempted when err occurred. If
// err is not already a dumpster error it is wrapped as KindInternal first.
func Op(err error, op string) error {
	if err == nil {
		return nil
	}
	e := asError(err)
	e.Op = op
	return e
}

// Attr attaches a structured key/value pair to err. If the error is not an
// *Error, it wraps it as KindInternal.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}
	e := asError(err)
	e.Attrs = append(e.Attrs, slog.Any(key, val))
	return e
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Msg: err.Error(), Err: err}
}

// GetKind returns the Kind of the error, or KindUnknown if it's not a
// dumpster error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetAttributes flattens every Attr recorded anywhere in err's chain into a
// single slog.Attr slice, nearest wrapper first; a key set more than once
// keeps its outermost (first-seen) value.
func GetAttributes(err error) []slog.Attr {
	var out []slog.Attr
	seen := make(map[string]bool)

	for {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		for _, a := range e.Attrs {
			if !seen[a.Key] {
				seen[a.Key] = true
				out = append(out, a)
			}
		}
		err = e.Err
	}
	return out
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's type contains an Unwrap method returning error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// IsConflict reports whether err represents an already-exists condition
// (duplicate event hash, set element already present).
func IsConflict(err error) bool {
	return GetKind(err) == KindConflict
}
