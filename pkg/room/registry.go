package room

import (
	"sort"
	"sync"
)

// DefaultCapacity is the per-subscriber buffer used when none is configured.
const DefaultCapacity = 1000

// Registry maps room names to their broadcast channel. Channels are created
// on first use and live as long as the registry.
type Registry struct {
	capacity int

	mu    sync.Mutex
	rooms map[string]*Channel
}

func NewRegistry(capacity int) *Registry {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		rooms:    make(map[string]*Channel),
	}
}

// GetOrCreate returns the channel for name, creating it if needed. Concurrent
// callers for the same name always get the same channel.
func (r *Registry) GetOrCreate(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.rooms[name]
	if !ok {
		ch = newChannel(name, r.capacity)
		r.rooms[name] = ch
	}
	return ch
}

// Rooms lists the names of every channel created so far.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}
