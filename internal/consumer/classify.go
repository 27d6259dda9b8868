package consumer

import (
	"errors"

	"github.com/mouts/order-ingestion/internal/processor"
	"github.com/mouts/order-ingestion/internal/repo"
)

// ErrMissingIdempotencyKey is the poison-pill classification for a
// record with no X-Idempotency-Key header: routed straight to the DLT,
// never handed to the processor.
var ErrMissingIdempotencyKey = errors.New("missing idempotency key header")

// retryable reports whether err counts against the delivery's attempt
// budget and should be retried, versus failing the attempt outright.
// Anything this function doesn't recognize is treated as retryable —
// the router never silently drops a record it can't classify.
func retryable(err error) bool {
	switch {
	case errors.Is(err, processor.ErrInvalidRequest):
		return false
	case errors.Is(err, repo.ErrDuplicateKey):
		return false
	default:
		return true
	}
}
