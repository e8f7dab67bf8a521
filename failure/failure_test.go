package failure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
)

type contract struct {
	name     string
	declared []Kind
}

func (c contract) String() string { return c.name }

func (c contract) Declares(k Kind) bool {
	for _, d := range c.declared {
		if d == k {
			return true
		}
	}
	return false
}

type closedSignal struct{}

func (closedSignal) Error() string       { return "stream reset by peer" }
func (closedSignal) SessionClosed() bool { return true }

type appError struct{ kind Kind }

func (e appError) Error() string     { return "app error " + string(e.kind) }
func (e appError) FailureKind() Kind { return e.kind }

// wrapper carries its own kind and unwraps to inner.
type wrapper struct {
	kind  Kind
	inner error
}

func (w *wrapper) Error() string     { return string(w.kind) + ": " + w.inner.Error() }
func (w *wrapper) FailureKind() Kind { return w.kind }
func (w *wrapper) Unwrap() error     { return w.inner }

func TestReconcile(t *testing.T) {
	none := contract{name: "Greeter.Greet"}
	notFound := contract{name: "Greeter.Lookup", declared: []Kind{"NotFound"}}

	checked := New("NotFound", "no such user")
	wrapped := fmt.Errorf("call failed: %w", checked)
	runtime := errors.New("boom")
	fault := Fault("nil receiver")

	tests := []struct {
		name      string
		cause     error
		contract  contract
		wantClass Class
		wantSame  bool // translated error is the cause itself
	}{
		{"eof", io.EOF, none, ClassUnchecked, true},
		{"truncated reply", fmt.Errorf("decode reply: %w", io.ErrUnexpectedEOF), none, ClassUnchecked, true},
		{"closed pipe", io.ErrClosedPipe, notFound, ClassSessionClosed, false},
		{"net closed", fmt.Errorf("read: %w", net.ErrClosed), none, ClassSessionClosed, false},
		{"custom closed", closedSignal{}, notFound, ClassSessionClosed, false},
		{"plain error", runtime, none, ClassUnchecked, true},
		{"canceled", context.Canceled, none, ClassUnchecked, true},
		{"fault kind", fault, none, ClassUnchecked, true},
		{"runtime kind", New(KindRuntime, "x"), none, ClassUnchecked, true},
		{"fault around checked", &wrapper{KindFault, checked}, none, ClassUnchecked, true},
		{"checked around fault", &wrapper{"Conflict", fault}, none, ClassUndeclared, false},
		{"declared", checked, notFound, ClassDeclared, true},
		{"declared wrapped", wrapped, notFound, ClassDeclared, true},
		{"declared app type", appError{"NotFound"}, notFound, ClassDeclared, true},
		{"declared in join", errors.Join(runtime, checked), notFound, ClassDeclared, true},
		{"undeclared", checked, none, ClassUndeclared, false},
		{"undeclared other kind", New("Conflict", "x"), notFound, ClassUndeclared, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := Reconcile(tc.cause, tc.contract)
			if rec.Class != tc.wantClass {
				t.Errorf("Class = %v, want %v", rec.Class, tc.wantClass)
			}
			if rec.Cause != tc.cause {
				t.Errorf("Cause = %v, want %v", rec.Cause, tc.cause)
			}
			if got := rec.Translated == tc.cause; got != tc.wantSame {
				t.Errorf("Translated = %v, same as cause: %v, want %v", rec.Translated, got, tc.wantSame)
			}
		})
	}
}

func TestSessionClosedSingleton(t *testing.T) {
	for _, cause := range []error{net.ErrClosed, io.ErrClosedPipe, closedSignal{}} {
		if got := Translate(cause, contract{name: "m"}); got != ErrSessionClosed {
			t.Errorf("Translate(%v) = %v, want ErrSessionClosed", cause, got)
		}
	}
}

func TestUndeclaredWrapsCause(t *testing.T) {
	cause := New("Quota", "over limit")
	err := Translate(cause, contract{name: "Store.Put"})

	var ue *UndeclaredError
	if !errors.As(err, &ue) {
		t.Fatalf("Translate = %T, want *UndeclaredError", err)
	}
	if ue.Cause != cause {
		t.Errorf("Cause = %v, want %v", ue.Cause, cause)
	}
	if ue.Method != "Store.Put" {
		t.Errorf("Method = %q, want Store.Put", ue.Method)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestReconcileNil(t *testing.T) {
	if rec := Reconcile(nil, contract{}); rec != (Record{}) {
		t.Errorf("Reconcile(nil) = %+v, want zero", rec)
	}
}

func TestKindOf(t *testing.T) {
	if k, ok := KindOf(fmt.Errorf("x: %w", New("Denied", "no"))); !ok || k != "Denied" {
		t.Errorf("KindOf = %q, %v; want Denied, true", k, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain) reported a kind")
	}
}
