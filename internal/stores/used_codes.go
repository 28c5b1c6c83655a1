package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeAlreadyUsed  = errors.New("one-time code already used")
	ErrCodeCacheBackend = errors.New("used code cache backend unavailable")
)

// UsedCodeCache remembers the highest TOTP counter accepted per user so a
// code cannot be replayed within its validity window.
type UsedCodeCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewUsedCodeCache creates a cache whose entries live for ttl, which should
// cover the full acceptance window of a code.
func NewUsedCodeCache(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *UsedCodeCache {
	if prefix == "" {
		prefix = "sa:otp"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UsedCodeCache{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *UsedCodeCache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Consume records counter as used for userID. It fails with
// ErrCodeAlreadyUsed when counter is not newer than the last accepted one,
// including when a concurrent Consume for the same user wins the race.
func (c *UsedCodeCache) Consume(ctx context.Context, userID string, counter int64) error {
	const maxRetries = 4
	key := c.key(userID)

	for i := 0; i < maxRetries; i++ {
		err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
			last := int64(-1)
			raw, err := tx.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				parsed, perr := strconv.ParseInt(raw, 10, 64)
				if perr != nil {
					return perr
				}
				last = parsed
			}

			if counter <= last {
				return ErrCodeAlreadyUsed
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, strconv.FormatInt(counter, 10), c.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrCodeAlreadyUsed) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrCodeCacheBackend, err)
		}
		return nil
	}

	return ErrCodeAlreadyUsed
}

// Forget drops the record for userID, used when the second factor is
// disabled so a re-enrolled secret starts clean.
func (c *UsedCodeCache) Forget(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeCacheBackend, err)
	}
	return nil
}
