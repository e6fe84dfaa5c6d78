package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"quiz-room-service/internal/domain"
)

// EventSink is one attached connection (screen or player). Implementations
// must tolerate concurrent SendEvent calls.
type EventSink interface {
	SendEvent(event string, payload any) error
	IsConnected() bool
}

// timerHandle wraps a one-shot timer so a firing callback can verify it is
// still the room's current timer before acting. Identity of the handle, not
// of the underlying timer, is what transitions compare.
type timerHandle struct {
	timer clockwork.Timer
}

// Player tracks one participant's per-game bookkeeping. All response times
// are clamped seconds within the question window.
type Player struct {
	Name              string
	Answered          bool
	Score             decimal.Decimal
	LastAnsweredAt    time.Time
	LastResponseTime  *float64
	ResponseTimes     []float64
	TotalResponseTime float64
	MinResponseTime   *float64
	MaxResponseTime   *float64
}

func newPlayer(name string) *Player {
	return &Player{Name: name, Score: decimal.Zero}
}

// resetForQuestion clears the per-question flags; accumulated statistics
// survive until the next game start.
func (p *Player) resetForQuestion() {
	p.Answered = false
	p.LastAnsweredAt = time.Time{}
	p.LastResponseTime = nil
}

// resetForGame wipes everything, including statistics. Only a game
// (re)start may do this.
func (p *Player) resetForGame() {
	p.resetForQuestion()
	p.Score = decimal.Zero
	p.ResponseTimes = nil
	p.TotalResponseTime = 0
	p.MinResponseTime = nil
	p.MaxResponseTime = nil
}

func (p *Player) recordResponseTime(seconds float64) {
	p.ResponseTimes = append(p.ResponseTimes, seconds)
	p.TotalResponseTime += seconds
	if p.MinResponseTime == nil || seconds < *p.MinResponseTime {
		v := seconds
		p.MinResponseTime = &v
	}
	if p.MaxResponseTime == nil || seconds > *p.MaxResponseTime {
		v := seconds
		p.MaxResponseTime = &v
	}
}

// Room is one live quiz session. All fields are guarded by mu; every
// transition (command, timeout, auto start) runs under it, so ordering of
// the event log always matches the order transitions occurred.
type Room struct {
	mu sync.Mutex

	id     string
	quizID string

	players map[string]*Player
	sockets map[string]EventSink
	screen  EventSink

	questions    []domain.Question
	currentIndex int
	answers      map[string]*string

	questionStartedAt time.Time
	questionDuration  int
	questionTimer     *timerHandle

	autoStart       *timerHandle
	autoStartAt     time.Time
	autoStartOrigin string

	events []domain.Event
}

// NewRoom creates an empty room with no game started (index -1).
func NewRoom(id, quizID string) *Room {
	return &Room{
		id:           id,
		quizID:       quizID,
		players:      make(map[string]*Player),
		sockets:      make(map[string]EventSink),
		answers:      make(map[string]*string),
		currentIndex: -1,
	}
}

// ID returns the room's join code.
func (r *Room) ID() string { return r.id }

// QuizID returns the quiz associated at creation; empty when none.
func (r *Room) QuizID() string { return r.quizID }

// Events returns a copy of the room's event log.
func (r *Room) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// questionActiveLocked reports whether the index points at a real question.
func (r *Room) questionActiveLocked() bool {
	return r.currentIndex >= 0 && r.currentIndex < len(r.questions)
}
