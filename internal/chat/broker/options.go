package broker

import (
	"errors"
	"fmt"
)

// WithQueueSize - overwrites default capacity of client outbox.
// A client whose outbox is full when an event arrives is evicted.
func WithQueueSize(size int) brokerOption {
	return func(b *Broker) error {
		if size <= 0 {
			return fmt.Errorf("broker.WithQueueSize: invalid size (%d)", size)
		}
		b.queueSize = size
		return nil
	}
}

// WithDropHandler - attach func to be notified when a slow client is evicted.
func WithDropHandler(f func(id int)) brokerOption {
	return func(b *Broker) error {
		if b.onDrop != nil {
			return errors.New("broker.WithDropHandler: drop handler already set up")
		}
		b.onDrop = f
		return nil
	}
}
