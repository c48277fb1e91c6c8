package lock

import (
	"github.com/ovationhq/ovation/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module provides the reconciler sweep lock. Without REDIS_ADDR the locker is
// nil and sweeps run unguarded (single-instance mode).
var Module = fx.Module("lock",
	fx.Provide(func(cfg config.Config) *Locker {
		if cfg.RedisAddr == "" {
			return nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return NewLocker(client)
	}),
)
