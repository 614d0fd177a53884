package dispatch

import (
	"context"

	"github.com/smallbiznis/procura/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.dispatch",
	fx.Provide(NewDispatcher),
	fx.Invoke(registerDispatcher),
)

func registerDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	if !email.Configured(d.provider) {
		d.log.Warn("email provider not configured, jobs stay pending")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				d.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
