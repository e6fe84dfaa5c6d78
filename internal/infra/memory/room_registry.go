package memory

import (
	"sync"

	"quiz-room-service/internal/app"
)

// RoomRegistry is the in-memory implementation of app.RoomRegistry. Rooms
// are retained for the life of the process; there is intentionally no
// delete.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*app.Room),
	}
}

// CreateRoom stores a fresh room under id. Any prior room at that id is
// replaced, not merged.
func (r *RoomRegistry) CreateRoom(id, quizID string) *app.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := app.NewRoom(id, quizID)
	r.rooms[id] = room
	return room
}

func (r *RoomRegistry) GetRoom(id string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}
