// Package failure defines the error model seen by callers of an RPC client.
//
// Remote failures carry a Kind. A kinded failure is "checked": an interface
// method must declare its kind for the failure to reach a synchronous caller
// unchanged. Errors without a kind, and those whose outermost kind is one of
// the two unchecked kinds KindFault and KindRuntime, pass through as-is.
//
//	cause ──► closed session? ──yes──► ErrSessionClosed
//	            │no
//	            ▼
//	          unchecked, or kind declared? ──yes──► cause
//	            │no
//	            ▼
//	          *UndeclaredError{cause}
package failure

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind names a class of failure a method may declare.
type Kind string

const (
	// KindFault marks a programming fault (bad binding, broken invariant, handler panic).
	KindFault Kind = "fault"
	// KindRuntime marks a runtime failure that no method needs to declare.
	KindRuntime Kind = "runtime"
)

// Unchecked reports whether failures of kind k bypass the declared-failure check.
func (k Kind) Unchecked() bool { return k == "" || k == KindFault || k == KindRuntime }

var (
	// ErrSessionClosed is returned to synchronous callers whenever the
	// transport session closed before the call completed. It is a singleton
	// and may be compared with == as well as errors.Is.
	ErrSessionClosed = errors.New("rpc: session closed")

	// ErrUnsupportedIdentityOperation is reported for an identity-category
	// method other than string form, hash, and equality.
	ErrUnsupportedIdentityOperation = errors.New("rpc: unsupported identity operation")
)

// A Failure is an error with a kind, usually produced by decoding a remote
// error response.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error // optional
}

// New constructs a *Failure of the given kind.
func New(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Fault constructs a KindFault failure.
func Fault(format string, args ...any) *Failure { return New(KindFault, format, args...) }

func (f *Failure) Error() string {
	if f.Kind == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// FailureKind implements Kinded.
func (f *Failure) FailureKind() Kind { return f.Kind }

// Kinded is implemented by errors that carry a failure kind. Applications may
// implement it on their own error types.
type Kinded interface {
	error
	FailureKind() Kind
}

// UndeclaredError wraps a checked failure that the invoked method does not
// declare.
type UndeclaredError struct {
	Method string
	Cause  error
}

func (e *UndeclaredError) Error() string {
	return fmt.Sprintf("rpc: undeclared failure from %s: %v", e.Method, e.Cause)
}

func (e *UndeclaredError) Unwrap() error { return e.Cause }

// KindOf returns the first non-empty kind found in the chain of err, and
// whether one was found.
func KindOf(err error) (Kind, bool) {
	for _, k := range kinds(err, nil) {
		return k, true
	}
	return "", false
}

// kinds appends every kind found in the error tree rooted at err.
func kinds(err error, out []Kind) []Kind {
	if err == nil {
		return out
	}
	if k, ok := err.(Kinded); ok && k.FailureKind() != "" {
		out = append(out, k.FailureKind())
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return kinds(u.Unwrap(), out)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			out = kinds(e, out)
		}
	}
	return out
}

// IsSessionClosed reports whether err signals that the transport session or
// channel closed before the call completed. Transports mark their own
// teardown with an error whose SessionClosed method reports true. A bare
// io.EOF is not enough: decoders report truncated payloads the same way.
func IsSessionClosed(err error) bool {
	if err == nil {
		return false
	}
	var sc interface{ SessionClosed() bool }
	if errors.As(err, &sc) && sc.SessionClosed() {
		return true
	}
	return errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// IsUnchecked reports whether err may reach a caller without being declared.
// The outermost kind decides; an error with no kind at all is unchecked.
func IsUnchecked(err error) bool {
	k, ok := KindOf(err)
	return !ok || k.Unchecked()
}
