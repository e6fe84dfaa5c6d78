package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/domain"
)

// RoomRegistry abstracts how rooms are stored (in-memory, Redis-marked).
// Rooms live for the life of the process; there is no delete.
type RoomRegistry interface {
	// CreateRoom stores a fresh room under id, replacing any prior one.
	CreateRoom(id, quizID string) *Room
	GetRoom(id string) (*Room, bool)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomEngine drives live quiz rooms: it owns the question phase machine,
// the auto-start scheduler, and the fanout of events to attached sockets.
type RoomEngine struct {
	rooms   RoomRegistry
	quizzes QuizRepository
	clock   clockwork.Clock
}

func NewRoomEngine(rooms RoomRegistry, quizzes QuizRepository) *RoomEngine {
	return NewRoomEngineWithClock(rooms, quizzes, clockwork.NewRealClock())
}

// NewRoomEngineWithClock allows a fake clock for deterministic timers and
// timestamps in tests.
func NewRoomEngineWithClock(rooms RoomRegistry, quizzes QuizRepository, clock clockwork.Clock) *RoomEngine {
	return &RoomEngine{rooms: rooms, quizzes: quizzes, clock: clock}
}

// CreateRoom registers a new room, replacing any prior room at that id.
func (e *RoomEngine) CreateRoom(roomID, quizID string) *Room {
	return e.rooms.CreateRoom(roomID, quizID)
}

// Room looks up a room by join code.
func (e *RoomEngine) Room(roomID string) (*Room, bool) {
	return e.rooms.GetRoom(roomID)
}

// AddPlayer registers a player by display name. Rejoining under the same
// name returns the existing record untouched.
func (e *RoomEngine) AddPlayer(roomID, name string) (*Player, error) {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return e.addPlayerLocked(room, name), nil
}

func (e *RoomEngine) addPlayerLocked(room *Room, name string) *Player {
	if player, ok := room.players[name]; ok {
		return player
	}
	player := newPlayer(name)
	room.players[name] = player
	return player
}

// ConnectScreen attaches the shared display connection and replays the full
// event log to it, in order, before it sees any new event.
func (e *RoomEngine) ConnectScreen(roomID string, sink EventSink) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.screen = sink
	e.replayLocked(room, sink)
	return nil
}

// ConnectPlayer registers the player (idempotently), replays the event log
// to the new socket and then announces the join to the whole room.
func (e *RoomEngine) ConnectPlayer(roomID, name string, sink EventSink) (*Player, error) {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	player := e.addPlayerLocked(room, name)
	e.replayLocked(room, sink)
	room.sockets[name] = sink
	e.broadcastLocked(room, domain.EventPlayerJoined, domain.PlayerJoinedPayload{
		Player:  name,
		Players: playerNamesLocked(room),
	})
	return player, nil
}

// DisconnectScreen detaches the display socket. The room keeps running.
func (e *RoomEngine) DisconnectScreen(roomID string) {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.screen = nil
}

// DisconnectPlayer detaches a player's socket. The player record stays and
// keeps counting toward the all-answered quorum.
func (e *RoomEngine) DisconnectPlayer(roomID, name string) {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	delete(room.sockets, name)
}

// Broadcast appends the event to the room's log and fans it out to the
// screen and every player socket.
func (e *RoomEngine) Broadcast(roomID, event string, payload any) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e.broadcastLocked(room, event, payload)
	return nil
}

// AllAnswered reports whether every registered player has answered the
// active question. Empty rooms never satisfy the quorum.
func (e *RoomEngine) AllAnswered(roomID string) bool {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return allAnsweredLocked(room)
}

// LoadQuestions resolves the ordered question list for the room's quiz via
// the quiz repository.
func (e *RoomEngine) LoadQuestions(ctx context.Context, roomID string) ([]domain.Question, error) {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	quizID := room.QuizID()
	if quizID == "" || e.quizzes == nil {
		return nil, domain.ErrNoQuizAssigned
	}
	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return quiz.Questions, nil
}

// broadcastLocked appends the event to the log first, preserving replay
// order, then delivers to the screen and all player sockets concurrently.
// A failing or disconnected socket never affects the other recipients.
func (e *RoomEngine) broadcastLocked(room *Room, event string, payload any) {
	room.events = append(room.events, domain.Event{Event: event, Payload: payload})

	targets := make([]EventSink, 0, len(room.sockets)+1)
	if room.screen != nil {
		targets = append(targets, room.screen)
	}
	for _, sink := range room.sockets {
		targets = append(targets, sink)
	}

	var wg sync.WaitGroup
	for _, sink := range targets {
		wg.Add(1)
		go func(s EventSink) {
			defer wg.Done()
			e.send(room.id, s, event, payload)
		}(sink)
	}
	wg.Wait()
}

// replayLocked pushes the entire historical log to one socket, in order.
func (e *RoomEngine) replayLocked(room *Room, sink EventSink) {
	for _, ev := range room.events {
		e.send(room.id, sink, ev.Event, ev.Payload)
	}
}

// send delivers one event to one socket, swallowing transport faults: a
// dead peer is that peer's problem, not the transition's.
func (e *RoomEngine) send(roomID string, sink EventSink, event string, payload any) {
	if sink == nil || !sink.IsConnected() {
		return
	}
	if err := sink.SendEvent(event, payload); err != nil {
		log.Debug().Err(err).Str("room", roomID).Str("event", event).Msg("socket send dropped")
	}
}

func playerNamesLocked(room *Room) []string {
	names := make([]string, 0, len(room.players))
	for name := range room.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// allAnsweredLocked keeps disconnected players in the quorum: a dropped
// socket does not end the question early, the question timeout does.
func allAnsweredLocked(room *Room) bool {
	if len(room.players) == 0 {
		return false
	}
	for _, player := range room.players {
		if !player.Answered {
			return false
		}
	}
	return true
}

func (e *RoomEngine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *RoomEngine) serverTime() string {
	return formatTime(e.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
