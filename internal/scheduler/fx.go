package scheduler

import (
	"context"

	"github.com/smallbiznis/printfleet/internal/connector"
	"github.com/smallbiznis/printfleet/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideConnectorFactory),
	fx.Provide(provideLease),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func provideConnectorFactory(r *connector.Registry) ConnectorFactory {
	return r
}

// provideLease keeps a nil lease a nil interface so polls skip leasing.
func provideLease(l *ratelimit.PollLease) Lease {
	if l == nil {
		return nil
	}
	return l
}

func registerLifecycle(lc fx.Lifecycle, cfg Config, sched *Scheduler, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Autostart {
				log.Info("scheduler autostart disabled")
				return nil
			}
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
