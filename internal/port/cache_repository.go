package port

import "context"

type RateLimiter interface {
	// Allow records a hit for key and reports whether it is within the limit
	Allow(ctx context.Context, key string) (bool, error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
