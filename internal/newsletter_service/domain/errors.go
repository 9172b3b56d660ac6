package domain

import "errors"

var (
	// ErrInvalidIdempotencyKey is returned before any store access when the
	// caller-supplied key fails validation. User-facing (400).
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

	// ErrAlreadyCompleted signals a second Complete call for the same
	// fingerprint. Programmer error, never a client-facing condition.
	ErrAlreadyCompleted = errors.New("idempotency record already completed")

	// ErrNoEligibleTasks is returned by the delivery queue when no pending
	// task is due. The worker treats it as "sleep, then poll again".
	ErrNoEligibleTasks = errors.New("no eligible delivery tasks")

	// ErrInvalidEmailAddress marks a recipient address that cannot be sent
	// to. Retrying cannot fix it, so the worker fails the task terminally.
	ErrInvalidEmailAddress = errors.New("invalid email address")
)
