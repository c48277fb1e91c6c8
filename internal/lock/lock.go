package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const sweepKeyPrefix = "reconciler:sweep:"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out the per-provider sweep lock so only one replica polls a
// gateway at a time.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

// AcquireSweep takes the sweep lock for one provider. On success it returns a
// release func that deletes the lock only while this holder still owns it; a
// lock that expired and was re-taken by another sweep is left alone.
func (l *Locker) AcquireSweep(ctx context.Context, provider string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("lock client not configured")
	}
	if provider == "" {
		return nil, false, errors.New("provider is empty")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}

	key := sweepKeyPrefix + provider
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
