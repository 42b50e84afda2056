package broker

import "time"

// SystemAuthor - author id of server generated messages, they are delivered to every client.
const SystemAuthor = -1

// Event - outbound event delivered to client outboxes.
type Event interface {
	broadcastEvent()
}

// ChatMessage - formatted chat line; clients skip messages of their own authorship.
type ChatMessage struct {
	Text     string
	AuthorID int
	At       time.Time
}

// Disconnect - the client with ID is leaving; only that client's writer reacts to it.
type Disconnect struct {
	ID int
}

// Shutdown - server is stopping, every writer finishes.
type Shutdown struct{}

// KeepaliveProbe - targeted liveness probe for a single client.
type KeepaliveProbe struct {
	Epoch uint64
}

func (ChatMessage) broadcastEvent()    {}
func (Disconnect) broadcastEvent()     {}
func (Shutdown) broadcastEvent()       {}
func (KeepaliveProbe) broadcastEvent() {}
