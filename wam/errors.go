package wam

import (
	"fmt"

	"github.com/rupertlssmith/lojix-sub000/term"
)

// InstantiationError is raised when a built-in needs a bound argument (for
// example, arithmetic evaluation of an unbound variable) and finds a
// variable instead, per spec.md §7.
type InstantiationError struct {
	Where string // the built-in or instruction that required instantiation
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("wam: instantiation error in %s", e.Where)
}

// TypeError is raised when a built-in is applied to a term of the wrong
// shape: call/1 of a non-callable, arithmetic on a compound, etc.
type TypeError struct {
	Expected string
	Got      Cell
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("wam: type error: expected %s, got %v", e.Expected, e.Got)
}

// ResourceError is raised when the heap, stack, or trail would exceed its
// configured ceiling. It is fatal to the resolve() call
// that triggered it, per spec.md §7.
type ResourceError struct {
	Resource string
	Limit    int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("wam: %s exhausted (limit %d)", e.Resource, e.Limit)
}

// LinkError is raised under CompilerConfig.Link == LinkStrict when compiled
// code calls a predicate indicator that never receives a clause, per
// SPEC_FULL.md §4.4's Linkage supplement.
type LinkError struct {
	Indicator term.Indicator
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("wam: link error: %s is not defined", e.Indicator)
}
