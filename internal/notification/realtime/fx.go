package realtime

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.realtime",
	fx.Provide(NewHub),
	fx.Provide(NewPublisher),
)

// NewPublisher publishes straight to the local hub unless Redis is configured.
func NewPublisher(lc fx.Lifecycle, hub *Hub, client *redis.Client, log *zap.Logger) Publisher {
	if client == nil {
		return hub
	}

	relay := NewRedisRelay(client, hub, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := relay.Run(ctx); err != nil {
					relay.log.Error("realtime relay stopped", zap.Error(err))
				}
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
	return relay
}
