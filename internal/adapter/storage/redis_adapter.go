package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	imageKeyPrefix       = "image:primary:"
	idempotencyKeyTTL    = 24 * time.Hour

	// noImage marks a cached "product has no primary image" answer.
	noImage = "-"
)

type RedisAdapter struct {
	client   *redis.Client
	imageTTL time.Duration
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client, imageTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, imageTTL: imageTTL}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetImageURL(ctx context.Context, productID string) (string, bool, error) {
	url, err := r.client.Get(ctx, imageKeyPrefix+productID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if url == noImage {
		return "", true, nil
	}
	return url, true, nil
}

func (r *RedisAdapter) SetImageURL(ctx context.Context, productID, url string) error {
	if url == "" {
		url = noImage
	}
	return r.client.Set(ctx, imageKeyPrefix+productID, url, r.imageTTL).Err()
}

func (r *RedisAdapter) FillImageURL(ctx context.Context, productID, url string) error {
	if url == "" {
		url = noImage
	}
	return r.client.SetNX(ctx, imageKeyPrefix+productID, url, r.imageTTL).Err()
}

func (r *RedisAdapter) InvalidateImageURL(ctx context.Context, productID string) error {
	return r.client.Del(ctx, imageKeyPrefix+productID).Err()
}
