package notify

import (
	"github.com/ovationhq/ovation/internal/notify/email"
	"github.com/ovationhq/ovation/internal/notify/push"
	"go.uber.org/fx"
)

var Module = fx.Module("notify",
	email.Module,
	fx.Provide(func() push.Provider { return &push.NoOpProvider{} }),
)
