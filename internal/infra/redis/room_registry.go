package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
)

// RoomRegistry is a Redis-aware implementation of app.RoomRegistry.
// Notes:
//   - Room state itself stays in-process; live sockets and timers cannot
//     cross instances anyway.
//   - Redis holds a liveness marker per room code (and the quiz binding),
//     so an operator can see which codes are active and a future
//     multi-instance setup could route joins.
type RoomRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

// CreateRoom replaces any prior room at id and refreshes the liveness
// marker. Marker writes are best-effort; a Redis hiccup must not block a
// live session.
func (r *RoomRegistry) CreateRoom(id, quizID string) *app.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := app.NewRoom(id, quizID)
	r.rooms[id] = room
	_ = r.client.Set(context.Background(), r.key(id), quizID, r.ttl).Err()
	return room
}

func (r *RoomRegistry) GetRoom(id string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRegistry) key(id string) string {
	return "room:live:" + id
}
