// Package broker keeps the registry of active chat clients and fans events out to them.
//
// Every client owns a buffered outbox, Broadcast pushes into all of them without blocking,
// so a slow or dead client never stalls delivery to the rest. Events broadcast one after
// another from the same goroutine are observed by every client in the same order.
package broker

import (
	"time"
)

// Broker - chat clients keeper and event router
type Broker struct {
	queueSize int
	onDrop    func(id int)

	clients *registry
}

type brokerOption func(b *Broker) error

func setup(b *Broker, options ...brokerOption) error {
	if b == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			return err
		}
	}
	return nil
}

// New - builds Broker with needed options.
func New(options ...brokerOption) (*Broker, error) {
	b := &Broker{
		queueSize: 256,
		clients:   newRegistry(),
	}

	if err := setup(b, options...); err != nil {
		return nil, err
	}

	return b, nil
}

// Join - registers new client and returns its outbox.
func (b *Broker) Join(m Member) (<-chan Event, error) {
	c := &client{
		info: ClientInfo{
			ID:          m.ID,
			Username:    m.Username,
			Profile:     m.Profile,
			RemoteAddr:  m.RemoteAddr,
			ConnectedAt: time.Now().UTC(),
		},
		outbox: make(chan Event, b.queueSize),
		evict:  m.Evict,
	}
	if err := b.clients.add(c); err != nil {
		return nil, err
	}
	return c.outbox, nil
}

// Leave - removes client from registry and hands Disconnect to its own outbox,
// so the client writer finishes even though it no longer receives broadcasts.
// A leaving client is never evicted: when the outbox is full Disconnect is not queued.
func (b *Broker) Leave(id int) (ClientInfo, bool) {
	c, ok := b.clients.delete(id)
	if !ok {
		return ClientInfo{}, false
	}
	if !c.evicted.Load() {
		select {
		case c.outbox <- Disconnect{ID: id}:
		default:
		}
	}
	return c.info, true
}

// Broadcast - tries to deliver event to all registered clients, returns the number of successful deliveries.
// Clients whose outbox is full are evicted.
func (b *Broker) Broadcast(event Event) int {
	delivered := 0
	for _, c := range b.clients.snapshot() {
		if b.deliver(c, event) {
			delivered++
		}
	}
	return delivered
}

// Send - tries to deliver event to single client.
func (b *Broker) Send(id int, event Event) bool {
	c, ok := b.clients.get(id)
	if !ok {
		return false
	}
	return b.deliver(c, event)
}

// Stop - refuses further joins and delivers Shutdown to every registered client.
// Returns the number of clients notified.
func (b *Broker) Stop() int {
	notified := 0
	for _, c := range b.clients.stop() {
		if b.deliver(c, Shutdown{}) {
			notified++
		}
	}
	return notified
}

// Len - number of registered clients.
func (b *Broker) Len() int {
	return b.clients.len()
}

// HasUsername - reports whether a registered client uses the username.
func (b *Broker) HasUsername(username string) bool {
	return b.clients.hasName(username)
}

// Client - returns copy of registry entry.
func (b *Broker) Client(id int) (ClientInfo, bool) {
	return b.clients.info(id)
}

// Snapshot - returns copies of all registry entries ordered by id.
func (b *Broker) Snapshot() []ClientInfo {
	return b.clients.infos()
}

// SetProfile - replaces presentation settings of the client.
func (b *Broker) SetProfile(id int, p Profile) bool {
	return b.clients.update(id, func(info *ClientInfo) {
		info.Profile = p
	})
}

// SetLatency - stores the last measured keepalive latency of the client.
func (b *Broker) SetLatency(id int, latency time.Duration) bool {
	return b.clients.update(id, func(info *ClientInfo) {
		info.Latency = latency
	})
}

func (b *Broker) deliver(c *client, event Event) bool {
	if c.evicted.Load() {
		return false
	}
	select {
	case c.outbox <- event:
		return true
	default:
	}
	if c.evicted.CompareAndSwap(false, true) {
		if c.evict != nil {
			c.evict()
		}
		if b.onDrop != nil {
			b.onDrop(c.info.ID)
		}
	}
	return false
}
