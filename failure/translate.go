package failure

// Class records which translation rule applied to a cause.
type Class int

const (
	ClassSessionClosed Class = iota + 1
	ClassUnchecked
	ClassDeclared
	ClassUndeclared
)

var classNames = [...]string{
	ClassSessionClosed: "session-closed",
	ClassUnchecked:     "unchecked",
	ClassDeclared:      "declared",
	ClassUndeclared:    "undeclared",
}

func (c Class) String() string {
	if c > 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// A Contract is the declared failure contract of an invoked method.
type Contract interface {
	// String names the method in error messages.
	String() string
	// Declares reports whether the method declares failures of kind k.
	Declares(k Kind) bool
}

// A Record is the outcome of reconciling a cause with a contract.
type Record struct {
	Cause      error // the failure as reported by the invoker
	Translated error // what the caller observes; may equal Cause
	Class      Class
}

// Reconcile applies the translation rules to cause in order, first match
// wins. A nil cause yields a zero Record.
func Reconcile(cause error, c Contract) Record {
	if cause == nil {
		return Record{}
	}
	rec := Record{Cause: cause, Translated: cause}
	switch {
	case IsSessionClosed(cause):
		rec.Translated, rec.Class = ErrSessionClosed, ClassSessionClosed
	case IsUnchecked(cause):
		rec.Class = ClassUnchecked
	case declares(cause, c):
		rec.Class = ClassDeclared
	default:
		rec.Translated = &UndeclaredError{Method: c.String(), Cause: cause}
		rec.Class = ClassUndeclared
	}
	return rec
}

// Translate returns the error a synchronous caller should observe for cause.
func Translate(cause error, c Contract) error { return Reconcile(cause, c).Translated }

func declares(err error, c Contract) bool {
	for _, k := range kinds(err, nil) {
		if c.Declares(k) {
			return true
		}
	}
	return false
}
