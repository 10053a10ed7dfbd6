package bus

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus backed by Redis SUBSCRIBE/PUBLISH. A fixed channel per
// assistant message is cheap enough that PSUBSCRIBE pattern matching buys
// nothing here.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus wraps an already-configured client. The caller owns the
// client's lifecycle (including Close).
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe buffers up to subscriberBufferSize frames per subscriber;
// when the buffer is full the newly arriving frame is dropped (and a
// warning logged) rather than blocking delivery,
// since a slow subscriber can always catch up from the durable row.
const subscriberBufferSize = 64

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, subscriberBufferSize)
	done := make(chan struct{})

	go func() {
		defer close(out)
		redisCh := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					slog.Warn("bus subscriber buffer full, dropping frame", "channel", channel)
				}
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		_ = sub.Close()
	}
	return out, unsubscribe, nil
}

var _ Bus = (*RedisBus)(nil)
