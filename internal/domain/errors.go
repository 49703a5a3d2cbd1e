package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")

	// Oracle aggregation failures. Callers must treat any of these as a hard
	// stop for price-dependent actions.
	ErrInsufficientSources = errors.New("insufficient live oracle sources")
	ErrDivergenceExceeded  = errors.New("oracle divergence exceeds bound")
	ErrAllSourcesStale     = errors.New("all oracle sources stale")

	// ErrBudgetExhausted is returned when a daily spend reservation would
	// oversubscribe the remaining budget.
	ErrBudgetExhausted = errors.New("daily budget exhausted")

	// ErrActionRestricted is returned when the circuit breaker currently
	// forbids the requested action.
	ErrActionRestricted = errors.New("action restricted by circuit breaker")
)
