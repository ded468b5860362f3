package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the nodes a single walk visits and enforces a
// maximum.
//
// Each walk gets its own QuotaEnforcer, sized len(graph)+1. An acyclic
// graph can never exceed it, so tripping the quota means the stored graph
// was corrupted after validation.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{
		maxSteps: maxSteps,
		current:  0,
	}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(strategy string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Strategy: strategy,
			Steps:    q.current,
			Limit:    q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a walk overruns its quota.
type StepsExceededError struct {
	Strategy string
	Steps    int
	Limit    int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("%s: walk of %s exceeded max steps quota: %d steps > %d limit",
		ErrCodeStepsExceeded, e.Strategy, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
