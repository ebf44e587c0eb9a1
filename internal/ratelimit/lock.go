package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// fencedDelete removes the lock key only while it still carries the caller's
// token. A holder that outlived its TTL cannot delete a lock someone else
// has since acquired.
const fencedDelete = `
local holder = redis.call("GET", KEYS[1])
if holder == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out short-lived advisory locks keyed by name. Each acquisition
// carries a fencing token; only the matching token can release the lock.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(fencedDelete),
	}
}

// TryLock attempts a non-blocking acquisition of key for ttl. On success it
// returns the fencing token to pass to Release; acquired is false when
// another holder owns the key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token = uuid.NewString()
	err = l.client.SetArgs(ctx, key, token, redis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Release drops the lock if token still holds it. Releasing a lock that
// expired or changed hands is a no-op, not an error.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}
