package broker

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Profile - client presentation settings.
type Profile struct {
	DisplayName  string
	NameColor    string
	MessageColor string
}

// Member - client description passed to Broker.Join.
type Member struct {
	ID         int
	Username   string
	Profile    Profile
	RemoteAddr string
	// Evict - called at most once when the client can not keep up with events.
	// It must not block, closing the client connection is enough.
	Evict func()
}

// ClientInfo - copy of client registry entry.
type ClientInfo struct {
	ID          int           `json:"id"`
	Username    string        `json:"username"`
	Profile     Profile       `json:"profile"`
	RemoteAddr  string        `json:"remote_addr"`
	ConnectedAt time.Time     `json:"connected_at"`
	Latency     time.Duration `json:"latency"`
}

type client struct {
	info    ClientInfo
	outbox  chan Event
	evict   func()
	evicted atomic.Bool
}

type registry struct {
	mu      sync.RWMutex
	stopped bool
	list    map[int]*client
	names   map[string]int
}

func newRegistry() *registry {
	return &registry{
		list:  make(map[int]*client),
		names: make(map[string]int),
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

func (r *registry) get(id int) (c *client, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok = r.list[id]
	return c, ok
}

func (r *registry) add(c *client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if _, ok := r.list[c.info.ID]; ok {
		return ErrIDTaken
	}
	if _, ok := r.names[c.info.Username]; ok {
		return ErrUsernameTaken
	}
	r.list[c.info.ID] = c
	r.names[c.info.Username] = c.info.ID
	return nil
}

func (r *registry) delete(id int) (*client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.list[id]
	if !ok {
		return nil, false
	}
	delete(r.list, id)
	delete(r.names, c.info.Username)
	return c, true
}

func (r *registry) hasName(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[username]
	return ok
}

// update - applies f to entry info under write lock.
func (r *registry) update(id int, f func(info *ClientInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.list[id]
	if !ok {
		return false
	}
	f(&c.info)
	return true
}

func (r *registry) info(id int) (ClientInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.list[id]
	if !ok {
		return ClientInfo{}, false
	}
	return c.info, true
}

// stop - marks registry stopped and returns snapshot taken at the same moment,
// so no client can join after the snapshot and miss the stop.
func (r *registry) stop() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return r.snapshotLocked()
}

func (r *registry) snapshot() []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *registry) snapshotLocked() []*client {
	list := make([]*client, 0, len(r.list))
	for _, c := range r.list {
		list = append(list, c)
	}
	return list
}

func (r *registry) infos() []ClientInfo {
	r.mu.RLock()
	list := make([]ClientInfo, 0, len(r.list))
	for _, c := range r.list {
		list = append(list, c.info)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
