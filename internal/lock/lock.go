package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

var (
	ErrLockKeyEmpty   = errors.New("lock key is empty")
	ErrLockTTLInvalid = errors.New("lock ttl must be positive")
)

// Locker is a single-key Redis lease. A nil Locker always grants the lock.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
		extend:  redis.NewScript(lockExtendScript),
	}
}

// TryLock sets key to a fresh token when it is absent. The returned token must be
// passed to Release.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, ErrLockKeyEmpty
	}
	if ttl <= 0 {
		return "", false, ErrLockTTLInvalid
	}
	if l == nil || l.client == nil {
		return "", true, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// Extend pushes the expiry of key to ttl from now while it still holds token.
// It reports false once the lease has been lost to expiry or another holder.
func (l *Locker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrLockTTLInvalid
	}
	if l == nil || l.client == nil {
		return true, nil
	}
	extended, err := l.extend.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return extended == 1, nil
}
