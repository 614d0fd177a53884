package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "procura:notifications:"
	channelPattern = channelPrefix + "*"
)

// Channel names the relay channel of one (organization, user) pair.
func Channel(orgID, userID snowflake.ID) string {
	return fmt.Sprintf("%s%s:%s", channelPrefix, orgID.String(), userID.String())
}

// ParseChannel is the inverse of Channel.
func ParseChannel(channel string) (orgID, userID snowflake.ID, err error) {
	rest, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected channel %q", channel)
	}
	orgPart, userPart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, fmt.Errorf("unexpected channel %q", channel)
	}
	if orgID, err = snowflake.ParseString(orgPart); err != nil {
		return 0, 0, err
	}
	if userID, err = snowflake.ParseString(userPart); err != nil {
		return 0, 0, err
	}
	return orgID, userID, nil
}

// RedisRelay publishes through Redis so every instance's hub sees every event.
// The local hub still applies the session org filter on receipt.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

func NewRedisRelay(client *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:       client,
		hub:          hub,
		log:          log.Named("realtime.relay"),
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
}

// Publish returns the number of instances that received the event.
func (r *RedisRelay) Publish(ctx context.Context, orgID, userID snowflake.ID, event Event) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}
	receivers, err := r.client.Publish(ctx, Channel(orgID, userID), payload).Result()
	if err != nil {
		return 0, err
	}
	return int(receivers), nil
}

// Run feeds relayed events into the local hub until ctx is done. Subscribing
// is retried with backoff for as long as Redis is unreachable, and again
// whenever the subscription is lost.
func (r *RedisRelay) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		sub, err := r.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.consume(ctx, sub)
		_ = sub.Close()
	}
	return nil
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInitial
	policy.MaxInterval = r.retryMax

	return backoff.Retry(ctx, func() (*redis.PubSub, error) {
		sub := r.client.PSubscribe(ctx, channelPattern)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, err
		}
		return sub, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn("realtime relay subscribe failed", zap.Duration("retry_in", wait), zap.Error(err))
		}),
	)
}

func (r *RedisRelay) consume(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.log.Warn("realtime relay subscription closed, resubscribing")
				return
			}
			r.deliver(ctx, msg)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, msg *redis.Message) {
	orgID, userID, err := ParseChannel(msg.Channel)
	if err != nil {
		r.log.Warn("ignoring relay message", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		r.log.Warn("invalid relay payload", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if event.OrgID != orgID.String() {
		r.log.Warn("relay payload org mismatch", zap.String("channel", msg.Channel))
		return
	}
	_, _ = r.hub.Publish(ctx, orgID, userID, event)
}
