// Package result implements the single-assignment cell that carries the
// outcome of one remote invocation.
//
// The invoker is the only writer. Exactly one of Succeed, Fail or Complete
// takes effect; later writes are ignored and report false. Readers either
// block in Await or attach continuations with OnComplete.
package result

import (
	"sync"
)

// State is the lifecycle state of a Pending.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "invalid"
}

// An Outcome is the terminal state of a Pending.
type Outcome struct {
	Value any
	Err   error
}

// State reports StateFailed if o carries an error, else StateSucceeded.
func (o Outcome) State() State {
	if o.Err != nil {
		return StateFailed
	}
	return StateSucceeded
}

// Pending is the outcome of one invocation, pending until completed.
// A Pending must not be copied; use New.
type Pending struct {
	done chan struct{}

	μ     sync.Mutex
	state State
	out   Outcome
	conts []func(Outcome)
}

// New returns an empty pending cell.
func New() *Pending { return &Pending{done: make(chan struct{})} }

// Succeeded returns a cell already completed with v.
func Succeeded(v any) *Pending {
	p := New()
	p.Succeed(v)
	return p
}

// Failed returns a cell already completed with err.
func Failed(err error) *Pending {
	p := New()
	p.Fail(err)
	return p
}

// Succeed completes p with v and reports whether this call completed it.
func (p *Pending) Succeed(v any) bool { return p.Complete(Outcome{Value: v}) }

// Fail completes p with err and reports whether this call completed it.
// A nil err is treated as success with a nil value.
func (p *Pending) Fail(err error) bool { return p.Complete(Outcome{Err: err}) }

// Complete records out as the terminal state of p if p is still pending,
// runs the registered continuations, and reports whether it did so.
func (p *Pending) Complete(out Outcome) bool {
	if out.Err != nil {
		out.Value = nil
	}
	p.μ.Lock()
	if p.state != StatePending {
		p.μ.Unlock()
		return false
	}
	p.out, p.state = out, out.State()
	conts := p.conts
	p.conts = nil
	close(p.done)
	p.μ.Unlock()

	for _, f := range conts {
		f(out)
	}
	return true
}

// Done returns a channel that is closed once p is complete.
func (p *Pending) Done() <-chan struct{} { return p.done }

// State reports the current state without blocking.
func (p *Pending) State() State {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.state
}

// Outcome returns the terminal state without blocking; ok is false while p
// is still pending.
func (p *Pending) Outcome() (_ Outcome, ok bool) {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.out, p.state != StatePending
}

// Await blocks until p is complete and returns its terminal state. Repeated
// calls return the same state.
func (p *Pending) Await() Outcome {
	<-p.done
	out, _ := p.Outcome()
	return out
}

// Get is shorthand for Await that splits the outcome.
func (p *Pending) Get() (any, error) {
	out := p.Await()
	return out.Value, out.Err
}

// OnComplete arranges for f to be called with the terminal state of p. If p
// is already complete, f runs immediately on the calling goroutine;
// otherwise it runs on the goroutine that completes p.
func (p *Pending) OnComplete(f func(Outcome)) {
	p.μ.Lock()
	if p.state == StatePending {
		p.conts = append(p.conts, f)
		p.μ.Unlock()
		return
	}
	out := p.out
	p.μ.Unlock()
	f(out)
}
