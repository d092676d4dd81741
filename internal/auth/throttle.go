package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle counts failed login attempts per identifier in Redis. Once the
// limit is reached within the window, further attempts are refused until the
// counter expires. A nil client disables throttling.
type LoginThrottle struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewLoginThrottle constructs a LoginThrottle.
func NewLoginThrottle(client *redis.Client, max int64, window time.Duration) *LoginThrottle {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginThrottle{client: client, max: max, window: window}
}

func (t *LoginThrottle) key(identifier string) string {
	return "login_fail:" + strings.ToLower(strings.TrimSpace(identifier))
}

// Blocked reports whether the identifier has exhausted its attempts.
func (t *LoginThrottle) Blocked(ctx context.Context, identifier string) (bool, error) {
	if t == nil || t.client == nil {
		return false, nil
	}
	count, err := t.client.Get(ctx, t.key(identifier)).Int64()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return count >= t.max, nil
}

// Fail records a failed attempt, starting the expiry window on the first one.
func (t *LoginThrottle) Fail(ctx context.Context, identifier string) error {
	if t == nil || t.client == nil {
		return nil
	}
	key := t.key(identifier)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return t.client.Expire(ctx, key, t.window).Err()
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, identifier string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.key(identifier)).Err()
}
