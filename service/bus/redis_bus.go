package bus

import (
	"context"
	"sync"
	"time"

	"RTGateway/logger"
	"RTGateway/tools/safe"

	errs "RTGateway/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBridge implements Bridge over Redis Pub/Sub. It keeps separate
// publisher and subscriber clients: a Redis connection in subscribe mode
// cannot issue regular commands.
type RedisBridge struct {
	publisher  *redis.Client
	subscriber *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisBridge(c RedisConfig) (*RedisBridge, error) {
	opts := func() *redis.Options {
		return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	}
	pub := redis.NewClient(opts())
	sub := redis.NewClient(opts())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pub.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis bridge ping")
	}
	return &RedisBridge{publisher: pub, subscriber: sub}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, channel string, v any) error {
	data, err := encodePayload(v)
	if err != nil {
		return errors.Wrap(err, "encode bus payload")
	}
	if err := b.publisher.Publish(ctx, channel, data).Err(); err != nil {
		return errs.ErrBridgeUnavailable.WithMsg("publish %s: %v", channel, err)
	}
	return nil
}

func (b *RedisBridge) Subscribe(channel string, h Handler) error {
	ps := b.subscriber.Subscribe(context.Background(), channel)
	// force the subscription to be established before returning
	if _, err := ps.Receive(context.Background()); err != nil {
		return errs.ErrBridgeUnavailable.WithMsg("subscribe %s: %v", channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	ch := ps.Channel()
	safe.Go(func() {
		for m := range ch {
			h(context.Background(), decodePayload(m.Channel, []byte(m.Payload)))
		}
	})
	logger.Infof("[bus] subscribed to redis channel %s", channel)
	return nil
}

func (b *RedisBridge) Close() error {
	b.mu.Lock()
	for _, ps := range b.subs {
		_ = ps.Close()
	}
	b.subs = nil
	b.mu.Unlock()

	err := b.subscriber.Close()
	if perr := b.publisher.Close(); perr != nil {
		err = perr
	}
	return err
}
