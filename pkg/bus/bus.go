// Package bus implements the Event Bus (C8): named-channel pub/sub that
// decouples a turn worker from whatever is currently watching its stream.
// Delivery is fire-and-forget and at-most-once to each subscriber that is
// connected when a frame is published; late subscribers never see replays,
// since the durable row (pkg/storage) is always reconcilable against the
// live tail on its own.
package bus

import "context"

// Bus is the pub/sub surface every consumer depends on.
type Bus interface {
	// Publish sends payload (already-marshalled JSON) to channel. It never
	// blocks on a slow subscriber.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of raw JSON frames published to channel
	// from this point forward, and an unsubscribe func that must be called
	// to release resources. The returned channel is closed once unsubscribe
	// runs.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// ChannelFor returns the fixed per-message channel name C7/C8 publish and
// subscribe on.
func ChannelFor(assistantMessageID string) string {
	return "chat:message:" + assistantMessageID
}
