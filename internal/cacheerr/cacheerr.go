// Package cacheerr defines the closed set of error kinds shared by every
// cache component (node store, puzzler, remote retriever, index
// coordinator). Each kind carries its own recoverability: Miss, NotFound,
// BudgetExceeded, Network and ProtocolState are recoverable by some caller
// up the stack; Unsupported, Argument and MustNotHappen are caller-fatal.
package cacheerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories from the design's error handling
// section. Never add a kind without updating Recoverable below.
type Kind uint8

const (
	// Miss means the lookup failed locally and (if consulted) remotely.
	// The operator runner is expected to recompute.
	Miss Kind = iota + 1
	// NotFound means a ref points at an entry the owner no longer has.
	NotFound
	// BudgetExceeded means a put would exceed the 10% soft margin. The
	// typed store raises it without evicting; the node cache manager
	// returns it only after one eviction attempt has not made room.
	BudgetExceeded
	// Network covers framing violations, socket errors, magic mismatches
	// and timeouts. Per-connection fatal, per-request recoverable.
	Network
	// ProtocolState means an unexpected reply code was received.
	// Connection-fatal.
	ProtocolState
	// Unsupported means the operation is outside the result type's
	// contract (puzzling two plots, for instance). Caller-fatal.
	Unsupported
	// Argument means an invariant was violated by the caller's input.
	Argument
	// MustNotHappen means a contract between core components was
	// violated. Programmer error; aborts the operation loudly but never
	// the process.
	MustNotHappen
)

func (k Kind) String() string {
	switch k {
	case Miss:
		return "Miss"
	case NotFound:
		return "NotFound"
	case BudgetExceeded:
		return "BudgetExceeded"
	case Network:
		return "Network"
	case ProtocolState:
		return "ProtocolState"
	case Unsupported:
		return "Unsupported"
	case Argument:
		return "Argument"
	case MustNotHappen:
		return "MustNotHappen"
	default:
		return "Unknown"
	}
}

// Recoverable reports whether a caller one level up the stack can sensibly
// continue (retry, fall back to recompute, reconnect) rather than tear the
// whole operation down.
func (k Kind) Recoverable() bool {
	switch k {
	case Miss, NotFound, BudgetExceeded, Network, ProtocolState:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with context. Use errors.Is(err, cacheerr.Miss) style
// comparisons via the Is method, or Kind-extraction via As.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "store.get"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, SomeKindSentinel) work by comparing Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind, with an optional wrapped cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a comparable sentinel value for the given kind, suitable
// for errors.Is(err, cacheerr.Sentinel(cacheerr.Miss)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind, Op: "sentinel"}
}

var (
	// ErrMiss is the sentinel for Kind Miss.
	ErrMiss = Sentinel(Miss)
	// ErrNotFound is the sentinel for Kind NotFound.
	ErrNotFound = Sentinel(NotFound)
	// ErrBudgetExceeded is the sentinel for Kind BudgetExceeded.
	ErrBudgetExceeded = Sentinel(BudgetExceeded)
	// ErrNetwork is the sentinel for Kind Network.
	ErrNetwork = Sentinel(Network)
	// ErrProtocolState is the sentinel for Kind ProtocolState.
	ErrProtocolState = Sentinel(ProtocolState)
	// ErrUnsupported is the sentinel for Kind Unsupported.
	ErrUnsupported = Sentinel(Unsupported)
	// ErrArgument is the sentinel for Kind Argument.
	ErrArgument = Sentinel(Argument)
	// ErrMustNotHappen is the sentinel for Kind MustNotHappen.
	ErrMustNotHappen = Sentinel(MustNotHappen)
)
