// README: Generic directed status machine shared by ride and payment lifecycles.
package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// TransitionError reports a rejected transition. Err is one of ErrUnknownStatus
// or ErrIllegalTransition.
type TransitionError struct {
	Machine   string
	From      string
	To        string
	SubjectID string
	Err       error
}

func (e *TransitionError) Error() string {
	subject := ""
	if e.SubjectID != "" {
		subject = " for " + e.Machine + " " + e.SubjectID
	}
	if errors.Is(e.Err, ErrUnknownStatus) {
		return fmt.Sprintf("%s: %s %q -> %q%s", e.Machine, e.Err, e.From, e.To, subject)
	}
	return fmt.Sprintf("%s: %s from %q to %q%s", e.Machine, e.Err, e.From, e.To, subject)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Machine holds an ordered status list, a transition table and display labels.
// It is read-only after construction; accessors return copies.
type Machine[S ~string] struct {
	name        string
	order       []S
	transitions map[S][]S
	labels      map[S]string
}

// Definition is one row of a machine: the status, its label and its ordered
// successors.
type Definition[S ~string] struct {
	Status S
	Label  string
	Next   []S
}

// New builds a machine from rows. It panics if a successor is not itself
// declared, so a broken table fails at init rather than at request time.
func New[S ~string](name string, rows ...Definition[S]) *Machine[S] {
	m := &Machine[S]{
		name:        name,
		order:       make([]S, 0, len(rows)),
		transitions: make(map[S][]S, len(rows)),
		labels:      make(map[S]string, len(rows)),
	}
	for _, r := range rows {
		if _, dup := m.transitions[r.Status]; dup {
			panic(fmt.Sprintf("lifecycle %s: duplicate status %q", name, r.Status))
		}
		m.order = append(m.order, r.Status)
		m.transitions[r.Status] = append([]S(nil), r.Next...)
		m.labels[r.Status] = r.Label
	}
	for from, next := range m.transitions {
		for _, to := range next {
			if _, ok := m.transitions[to]; !ok {
				panic(fmt.Sprintf("lifecycle %s: %q -> undeclared status %q", name, from, to))
			}
		}
	}
	return m
}

func (m *Machine[S]) Name() string {
	return m.name
}

func (m *Machine[S]) IsValid(s string) bool {
	_, ok := m.transitions[S(s)]
	return ok
}

// Parse converts untrusted input to a status.
func (m *Machine[S]) Parse(s string) (S, bool) {
	if !m.IsValid(s) {
		return "", false
	}
	return S(s), true
}

// CanTransition looks only at the table; callers are expected to pass known
// statuses.
func (m *Machine[S]) CanTransition(from, to S) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Assert is the strict form: unknown statuses and illegal pairs both fail, with
// distinct causes.
func (m *Machine[S]) Assert(from, to, subjectID string) error {
	if !m.IsValid(from) || !m.IsValid(to) {
		return &TransitionError{Machine: m.name, From: from, To: to, SubjectID: subjectID, Err: ErrUnknownStatus}
	}
	if !m.CanTransition(S(from), S(to)) {
		return &TransitionError{Machine: m.name, From: from, To: to, SubjectID: subjectID, Err: ErrIllegalTransition}
	}
	return nil
}

func (m *Machine[S]) Allowed(from, to string) bool {
	return m.Assert(from, to, "") == nil
}

// Next returns the successors of current in declared order, or an empty slice.
func (m *Machine[S]) Next(current string) []S {
	next, ok := m.transitions[S(current)]
	if !ok {
		return []S{}
	}
	return append(make([]S, 0, len(next)), next...)
}

func (m *Machine[S]) IsTerminal(s S) bool {
	next, ok := m.transitions[s]
	return ok && len(next) == 0
}

func (m *Machine[S]) Statuses() []S {
	return append([]S(nil), m.order...)
}

func (m *Machine[S]) Label(s S) string {
	if l, ok := m.labels[s]; ok {
		return l
	}
	return string(s)
}

func (m *Machine[S]) Labels() map[S]string {
	out := make(map[S]string, len(m.labels))
	for k, v := range m.labels {
		out[k] = v
	}
	return out
}

// Table returns a copy of the full transition table.
func (m *Machine[S]) Table() map[S][]S {
	out := make(map[S][]S, len(m.transitions))
	for k := range m.transitions {
		out[k] = m.Next(string(k))
	}
	return out
}
