// Package method describes the methods a client can dispatch.
//
// A Method replaces the reflective method object of a dynamic proxy: it is
// built once per interface method and carries everything the dispatcher and
// the codec need, including the declared failure kinds.
package method

import (
	"slices"

	"callproxy/failure"
)

// Category separates object-identity methods from interface methods.
type Category int

const (
	Interface Category = iota
	Identity
)

// Method describes one dispatchable method.
type Method struct {
	Interface string // simple interface name, e.g. "Greeter"
	Name      string // method name, e.g. "Greet"
	Category  Category

	// Declared lists the failure kinds the method may report.
	Declared []failure.Kind

	// ReturnsHandle is set when the method's declared result is the pending
	// handle itself. Asynchronous clients only hand out the handle for such
	// methods.
	ReturnsHandle bool

	// NewReply returns a pointer to a fresh reply value for decoding. When nil
	// the reply is decoded into an untyped value.
	NewReply func() any
}

// The fixed identity-category methods.
var (
	ToString = &Method{Name: "String", Category: Identity}
	HashCode = &Method{Name: "Hash", Category: Identity}
	Equals   = &Method{Name: "Equal", Category: Identity}
)

// An Option configures a Method.
type Option func(*Method)

// Declares adds failure kinds to the declared set.
func Declares(kinds ...failure.Kind) Option {
	return func(m *Method) { m.Declared = append(m.Declared, kinds...) }
}

// ReturnsHandle marks the method as returning the pending handle.
func ReturnsHandle() Option { return func(m *Method) { m.ReturnsHandle = true } }

// Reply makes the method decode replies into values of type T.
func Reply[T any]() Option {
	return func(m *Method) { m.NewReply = func() any { return new(T) } }
}

// New constructs an interface-category method of iface.
func New(iface, name string, opts ...Option) *Method {
	m := &Method{Interface: iface, Name: name, Category: Interface}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ServiceMethod returns the wire name "Interface.Name".
func (m *Method) ServiceMethod() string {
	if m.Interface == "" {
		return m.Name
	}
	return m.Interface + "." + m.Name
}

func (m *Method) String() string { return m.ServiceMethod() }

// Declares implements failure.Contract.
func (m *Method) Declares(k failure.Kind) bool { return slices.Contains(m.Declared, k) }
