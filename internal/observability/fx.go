package observability

import (
	"github.com/ovationhq/ovation/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(func() *metrics.Metrics { return metrics.Default() }),
)
