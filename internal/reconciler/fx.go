package reconciler

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("reconciler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(runReconciler),
)

func ProvideConfig() Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("RECONCILER_INTERVAL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Interval = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECONCILER_LOOKBACK")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Lookback = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECONCILER_BATCH_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = parsed
		}
	}
	return cfg.withDefaults()
}

func runReconciler(lc fx.Lifecycle, r *Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go r.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
