package messaging

import "context"

// Broker is the pub/sub transport between the API and the worker.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channel names shared by publisher and subscribers.
const (
	ChannelNotifications = "notifications"
)
