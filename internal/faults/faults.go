// Package faults defines the error taxonomy shared by every component. Each
// typed error in the module reports one Kind so that callers can tell a
// broken graph from failing logic or an intervening environment without
// matching on concrete types.
package faults

import "errors"

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindBuild errors come from graph or cycle construction. Always fatal.
	KindBuild
	// KindValidation errors are detected before any node executes.
	KindValidation
	// KindExecution errors abort a run or a cycle group while keeping the
	// state recorded so far.
	KindExecution
	// KindOperational errors mean the environment intervened (cancellation,
	// timeouts) rather than the logic failing.
	KindOperational
)

func (k Kind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// Classified is implemented by every typed error in the module.
type Classified interface {
	error
	Kind() Kind
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}

// Retryable is implemented by errors that may succeed when the failed unit
// is executed again.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether any error in err's chain declares itself retryable.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
