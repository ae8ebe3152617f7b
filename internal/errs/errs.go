// Package errs implements the four-member error taxonomy from §7:
// Transient, Permanent, InvariantViolation and CompensationFailure. The saga
// orchestrator branches on Classification instead of sniffing error
// strings, generalizing the teacher's sentinel-error style
// (resilience.ErrCircuitOpen, resilience.ErrMaxRetriesExceeded) to four
// classes instead of two.
package errs

import (
	"errors"
	"fmt"
)

// Classification is the error taxonomy member an error belongs to.
type Classification int

const (
	// Unclassified errors are treated as Permanent by the orchestrator: an
	// error nobody tagged should not be retried silently forever.
	Unclassified Classification = iota
	ClassTransient
	ClassPermanent
	ClassInvariantViolation
	ClassCompensationFailure
)

func (c Classification) String() string {
	switch c {
	case ClassTransient:
		return "TRANSIENT"
	case ClassPermanent:
		return "PERMANENT"
	case ClassInvariantViolation:
		return "INVARIANT_VIOLATION"
	case ClassCompensationFailure:
		return "COMPENSATION_FAILURE"
	default:
		return "UNCLASSIFIED"
	}
}

// Classified wraps an error with its taxonomy member.
type Classified struct {
	class Classification
	err   error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("%s: %v", c.class, c.err)
}

func (c *Classified) Unwrap() error { return c.err }

// Class returns the wrapped error's classification.
func (c *Classified) Class() Classification { return c.class }

// Transient wraps err as a retryable error (timeouts, connection resets,
// explicit retry signals).
func Transient(err error) error { return &Classified{class: ClassTransient, err: err} }

// Permanent wraps err as a non-retryable rejection (validation failure,
// precondition violation, authoritative NACK).
func Permanent(err error) error { return &Classified{class: ClassPermanent, err: err} }

// Invariant wraps err as a fatal invariant violation (double-entry mismatch,
// illegal state transition, tenant-scope breach). The saga terminates in
// FAILED without attempting compensation: the aggregate is suspect.
func Invariant(err error) error { return &Classified{class: ClassInvariantViolation, err: err} }

// CompensationFailure wraps err as a compensation action that could not
// succeed after retries.
func CompensationFailure(err error) error {
	return &Classified{class: ClassCompensationFailure, err: err}
}

// ClassificationOf returns err's Classification, or Unclassified if err was
// never wrapped by this package.
func ClassificationOf(err error) Classification {
	var c *Classified
	if errors.As(err, &c) {
		return c.class
	}
	return Unclassified
}

// IsTransient reports whether err is classified Transient.
func IsTransient(err error) bool { return ClassificationOf(err) == ClassTransient }

// IsInvariantViolation reports whether err is classified InvariantViolation.
func IsInvariantViolation(err error) bool { return ClassificationOf(err) == ClassInvariantViolation }

// IsCompensationFailure reports whether err is classified CompensationFailure.
func IsCompensationFailure(err error) bool {
	return ClassificationOf(err) == ClassCompensationFailure
}
