package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	ErrRoomNotFound       = errors.New("live: room not found")
	ErrSubscriberNotFound = errors.New("live: subscriber not found")
)

// Room names the live feed of one event.
func Room(season, round int) string {
	return fmt.Sprintf("%d-%d", season, round)
}

// Subscriber is one connected client.
type Subscriber struct {
	ID         string
	Room       string
	RemoteAddr string
	JoinedAt   time.Time
}

type room struct {
	subscribers map[string]*Subscriber
	sessionKey  int // 0 until resolved
}

// Registry tracks which connections watch which room. Rooms are created on
// first subscribe and stay, possibly empty, for the life of the process.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	resolve singleflight.Group
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

// Subscribe registers a new connection under roomName.
func (r *Registry) Subscribe(roomName, remoteAddr string) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.NewString(),
		Room:       roomName,
		RemoteAddr: remoteAddr,
		JoinedAt:   r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		rm = &room{subscribers: make(map[string]*Subscriber)}
		r.rooms[roomName] = rm
	}
	rm.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub from its room. The room itself is kept.
func (r *Registry) Unsubscribe(sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sub.Room]
	if !ok {
		return ErrRoomNotFound
	}
	if _, ok := rm.subscribers[sub.ID]; !ok {
		return ErrSubscriberNotFound
	}
	delete(rm.subscribers, sub.ID)
	return nil
}

// Subscribers lists the connections of a room, oldest first.
func (r *Registry) Subscribers(roomName string) ([]Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := make([]Subscriber, 0, len(rm.subscribers))
	for _, s := range rm.subscribers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Rooms returns the number of known rooms, empty ones included.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Connections returns the number of subscribers across all rooms.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rm := range r.rooms {
		n += len(rm.subscribers)
	}
	return n
}

// SessionKey returns the live session of a room, calling resolve at most
// once at a time per room. A successful resolution is remembered; a failed
// one is retried by the next caller.
func (r *Registry) SessionKey(ctx context.Context, roomName string, resolve func(context.Context) (int, error)) (int, error) {
	r.mu.RLock()
	rm, ok := r.rooms[roomName]
	var key int
	if ok {
		key = rm.sessionKey
	}
	r.mu.RUnlock()

	if !ok {
		return 0, ErrRoomNotFound
	}
	if key != 0 {
		return key, nil
	}

	v, err, _ := r.resolve.Do(roomName, func() (any, error) {
		k, err := resolve(ctx)
		if err != nil {
			return 0, err
		}
		r.mu.Lock()
		if rm, ok := r.rooms[roomName]; ok {
			rm.sessionKey = k
		}
		r.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
