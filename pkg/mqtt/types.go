package mqtt

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Publish while the broker connection is down.
// Callers are expected to fail fast rather than queue.
var ErrNotConnected = errors.New("broker connection unavailable")

// MessageHandler processes an inbound message. Handlers run on the receive
// goroutine in arrival order and must hand off long-running work.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the publish/subscribe contract shared by the broker adapters.
// Topics and filters use MQTT syntax regardless of the underlying broker.
type Client interface {
	// Start launches the connection manager. It does not block on the connection.
	Start(ctx context.Context) error

	// Disconnect closes the connection gracefully.
	Disconnect(ctx context.Context)

	// Publish sends payload to topic. It returns ErrNotConnected immediately
	// while disconnected.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for filter. Registrations survive reconnects.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	// Unsubscribe removes a registration.
	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports the current connection state.
	IsConnected() bool
}
