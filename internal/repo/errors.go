package repo

import "errors"

var (
	// ErrDuplicateKey means idempotency_key already exists — another
	// worker raced us between the gate claim and the save (possible if a
	// claim expired). Non-retryable; the caller routes to the DLT.
	ErrDuplicateKey = errors.New("idempotency key already exists")

	// ErrNotFound means no order row matches the lookup.
	ErrNotFound = errors.New("order not found")

	// ErrVersionConflict means an update's WHERE version = ? touched zero
	// rows: the order moved to a terminal status (or a concurrent update
	// changed its version) since it was read.
	ErrVersionConflict = errors.New("order version conflict")

	// ErrTransient wraps any other persistence failure (connectivity,
	// timeout). Retryable against the delivery's attempt budget.
	ErrTransient = errors.New("transient persistence failure")
)
