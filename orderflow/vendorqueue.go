package orderflow

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSPublisher publishes orders to a JetStream stream. The per-message
// Nats-Msg-Id header makes JetStream drop duplicates inside its dedupe
// window, which is exactly the at-least-once-plus-dedupe contract the
// vendor queue activity requires.
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ QueuePublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server at url and ensures a stream
// exists for the vendor queue destination.
func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       "VENDOR_ORDERS",
		Subjects:   []string{VendorQueueDestination},
		Duplicates: 2 * time.Minute,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure vendor orders stream: %w", err)
	}

	return &NATSPublisher{nc: nc, js: js}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, destination, msgID string, data []byte) error {
	msg := &nats.Msg{
		Subject: destination,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Nats-Msg-Id", msgID)

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("jetstream publish to %s: %w", destination, err)
	}
	return nil
}

// Close closes the underlying NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		p.nc.Close()
	}
	return nil
}
