package domain

import "errors"

// The settlement engine surfaces a closed set of failure conditions. Every
// expected failure maps to exactly one of these sentinels; callers dispatch
// with errors.Is.
var (
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNotInitialized        = errors.New("not initialized")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketClosed          = errors.New("market closed")
	ErrMarketNotResolved     = errors.New("market not resolved")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrDeadlineNotReached    = errors.New("deadline not reached")
	ErrInvalidAmount         = errors.New("invalid amount")
	// ErrNothingToClaim is reserved in the taxonomy but has no reachable
	// call path: a claimant with no position receives a zero payout, not
	// an error.
	ErrNothingToClaim  = errors.New("nothing to claim")
	ErrAlreadyClaimed  = errors.New("already claimed")
	ErrInvalidDeadline = errors.New("invalid deadline")
)

// Collaborator-level failures.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLockHeld            = errors.New("lock already held")
)
