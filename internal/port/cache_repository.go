package port

import "context"

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetImageURL returns the cached primary image URL and whether it was cached
	GetImageURL(ctx context.Context, productID string) (string, bool, error)

	// SetImageURL overwrites the cached URL. Used after image changes commit.
	SetImageURL(ctx context.Context, productID, url string) error

	// FillImageURL caches url only when nothing is cached yet, so a reader
	// holding an older value never overwrites a newer one.
	FillImageURL(ctx context.Context, productID, url string) error

	InvalidateImageURL(ctx context.Context, productID string) error
}
