// Package transport delivers encoded publish items to the broker
// over a ZeroMQ PUSH socket.
package transport

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// Publish dials the broker at endpoint and sends payload as a single
// message, then closes the socket. Fire-and-forget: nothing is read
// back, there are no retries, and a send held up by the socket's
// high-water mark simply blocks the caller.
func Publish(ctx context.Context, endpoint string, payload []byte) error {
	sock := zmq4.NewPush(ctx)
	defer sock.Close()

	if err := sock.Dial(endpoint); err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return sock.Send(zmq4.NewMsg(payload))
}
