// Package errs defines the error kinds the store surfaces on its write and
// read paths (spec.md §7): NotFound, Corruption, IOError, InvalidArgument,
// Busy and NotSupported. Kinds are distinguished by sentinel value, not by
// concrete type, so callers can keep using errors.Is/errors.As against the
// wrapped chain the way the rest of the corpus does with pkg/errors.
package errs

import "github.com/pkg/errors"

// Kind identifies one of the error categories from spec.md §7.
type Kind int

const (
	// KindNotFound means the requested path/resource does not exist. A
	// missing key on Read is NOT this kind - that case returns an empty
	// accumulator with a nil error (spec.md §7 "User-visible behavior").
	KindNotFound Kind = iota
	// KindCorruption means a CRC mismatch, magic mismatch, truncated
	// trailer or unreadable footer was observed.
	KindCorruption
	// KindIOError means the underlying sink/source failed.
	KindIOError
	// KindInvalidArgument means a non-monotonic key, filter domain
	// overflow, or a mode violation (e.g. duplicate key under
	// mode=unique) was detected.
	KindInvalidArgument
	// KindBusy means a non-blocking write could not make progress.
	KindBusy
	// KindNotSupported means an unknown filter tag was seen on read with
	// paranoid checks enabled.
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCorruption:
		return "corruption"
	case KindIOError:
		return "io_error"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindBusy:
		return "busy"
	case KindNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// kindError carries a Kind alongside the wrapped chain produced by
// pkg/errors, mirroring the teacher's convention of wrapping with
// call-site context (utils/error.go) rather than inventing bespoke error
// structs per failure site.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New builds a Kind-tagged error from a format string.
func New(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving its chain.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, message)}
}

// Wrapf is Wrap with a format string.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrapf(err, format, args...)}
}

// Is reports whether err (or anything in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			if ke.kind == kind {
				return true
			}
			err = ke.err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf returns the Kind of err, or a false ok if err carries none.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
