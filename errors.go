// Package repocore defines the error taxonomy and the artifact UUID type
// shared by every package in the repository core.
package repocore

import (
	"errors"
	"fmt"
)

// ErrKind is a closed enumeration of the error kinds the core surfaces.
// Every error the core surfaces to a command belongs to exactly one kind,
// so callers can branch on it with errors.As instead of string matching.
type ErrKind int

const (
	// KindNotFound: resolver returned empty, or a read targeted a nonexistent rid.
	KindNotFound ErrKind = iota
	// KindAmbiguous: resolver matched more than one candidate for a prefix.
	KindAmbiguous
	// KindShunned: operation referenced an artifact listed in SHUN.
	KindShunned
	// KindMalformed: artifact bytes failed parse, checksum, or UUID match.
	KindMalformed
	// KindPhantom: a required UUID has no bytes yet.
	KindPhantom
	// KindWorkingCopyDirty: a mutating operation refused due to unmerged changes.
	KindWorkingCopyDirty
	// KindIO: underlying storage or filesystem error.
	KindIO
	// KindCorrupt: an invariant violation was detected (rebuild disagreed
	// with cross-link, checksum mismatch on read, etc).
	KindCorrupt
)

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAmbiguous:
		return "ambiguous"
	case KindShunned:
		return "shunned"
	case KindMalformed:
		return "malformed"
	case KindPhantom:
		return "phantom"
	case KindWorkingCopyDirty:
		return "working_copy_dirty"
	case KindIO:
		return "io"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the operation that produced it and
// the ErrKind it belongs to. Conflict is deliberately absent from this
// type: a merge conflict is a non-fatal warning count, not an error return.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, repocore.KindKind) style checks by comparing the
// sentinel kind markers below.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == k.kind
}

// NewError constructs an *Error for the given op/kind, wrapping err.
func NewError(op string, kind ErrKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

type kindSentinel struct{ kind ErrKind }

func (s kindSentinel) Error() string { return s.kind.String() }

// Sentinel errors usable with errors.Is(err, repocore.ErrNotFound) etc.,
// matched against any *Error of the same Kind regardless of Op/wrapped err.
var (
	ErrNotFound          error = kindSentinel{KindNotFound}
	ErrAmbiguous         error = kindSentinel{KindAmbiguous}
	ErrShunned           error = kindSentinel{KindShunned}
	ErrMalformed         error = kindSentinel{KindMalformed}
	ErrPhantom           error = kindSentinel{KindPhantom}
	ErrWorkingCopyDirty  error = kindSentinel{KindWorkingCopyDirty}
	ErrIO                error = kindSentinel{KindIO}
	ErrCorrupt           error = kindSentinel{KindCorrupt}
)

// KindOf extracts the ErrKind from err if it (or something it wraps) is a
// *Error, along with whether one was found.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
