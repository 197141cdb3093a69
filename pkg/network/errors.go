package network

import (
	"errors"
	"fmt"
)

// ErrorKind tags a ModelError with one of spec.md §4.1's named failure
// modes, so callers can branch on errors.As + Kind instead of string
// matching (the teacher's StorageError instead uses free-text Entity/Op;
// the validation error taxonomy here is closed and enumerable, so a typed
// Kind is the better fit).
type ErrorKind int

const (
	DuplicateId ErrorKind = iota
	UnknownReference
	InvalidLimits
	InvalidCost
	NoSlack
	MultipleSlacksPerIsland
	SingularAdmittance
	UnsupportedFeature
)

func (k ErrorKind) String() string {
	switch k {
	case DuplicateId:
		return "DuplicateId"
	case UnknownReference:
		return "UnknownReference"
	case InvalidLimits:
		return "InvalidLimits"
	case InvalidCost:
		return "InvalidCost"
	case NoSlack:
		return "NoSlack"
	case MultipleSlacksPerIsland:
		return "MultipleSlacksPerIsland"
	case SingularAdmittance:
		return "SingularAdmittance"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	default:
		return "Unknown"
	}
}

// ModelError is the structured error NetworkModel construction and mutation
// return, shaped after the teacher's StorageError (pkg/storage/errors.go):
// an operation, the entity involved, an optional cause, and free-text
// context, plus the closed ErrorKind above.
type ModelError struct {
	Kind    ErrorKind
	Op      string
	Entity  string
	ID      int64
	Context string
	Cause   error
}

func (e *ModelError) Error() string {
	base := fmt.Sprintf("%s: %s %s", e.Kind, e.Op, e.Entity)
	if e.ID != 0 {
		base += fmt.Sprintf(" %d", e.ID)
	}
	if e.Context != "" {
		base += fmt.Sprintf(" (%s)", e.Context)
	}
	if e.Cause != nil {
		base += fmt.Sprintf(": %v", e.Cause)
	}
	return base
}

func (e *ModelError) Unwrap() error { return e.Cause }

// Is reports whether target is a *ModelError with the same Kind, enabling
// errors.Is(err, &ModelError{Kind: network.NoSlack}).
func (e *ModelError) Is(target error) bool {
	var other *ModelError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

func newModelError(kind ErrorKind, op, entity string, id int64, context string) *ModelError {
	return &ModelError{Kind: kind, Op: op, Entity: entity, ID: id, Context: context}
}
