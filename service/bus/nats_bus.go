package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"RTGateway/logger"

	errs "RTGateway/tools/errs"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NatsBridge implements Bridge over core NATS subjects. Selected with
// BUS_DRIVER=nats for deployments whose backend services already sit on
// NATS instead of Redis.
type NatsBridge struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription // channel -> sub
}

type NatsConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func NewNatsBridge(cfg NatsConfig) (*NatsBridge, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &NatsBridge{nc: nc, subs: make(map[string]*nats.Subscription)}, nil
}

func (b *NatsBridge) Publish(ctx context.Context, channel string, v any) error {
	data, err := encodePayload(v)
	if err != nil {
		return errors.Wrap(err, "encode bus payload")
	}
	if err := b.nc.Publish(subject(channel), data); err != nil {
		return errs.ErrBridgeUnavailable.WithMsg("publish %s: %v", channel, err)
	}
	return nil
}

func (b *NatsBridge) Subscribe(channel string, h Handler) error {
	sub, err := b.nc.Subscribe(subject(channel), func(m *nats.Msg) {
		h(context.Background(), decodePayload(channel, append([]byte(nil), m.Data...)))
	})
	if err != nil {
		return errs.ErrBridgeUnavailable.WithMsg("subscribe %s: %v", channel, err)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	b.mu.Lock()
	b.subs[channel] = sub
	b.mu.Unlock()

	logger.Infof("[bus] subscribed to nats subject %s", subject(channel))
	return nil
}

func (b *NatsBridge) Close() error {
	b.mu.Lock()
	for ch, sub := range b.subs {
		_ = sub.Drain()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}

// Channel names use ':' separators (events:stickyNotes); NATS subjects
// use '.'.
func subject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}
