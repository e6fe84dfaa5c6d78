package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/domain"
)

// StartGame begins (or restarts) the game with the given ordered question
// list. Every player's score and statistics reset, the event log is wiped,
// and the first question is shown immediately.
func (e *RoomEngine) StartGame(roomID string, questions []domain.Question) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e.startGameLocked(room, questions)
	return nil
}

func (e *RoomEngine) startGameLocked(room *Room, questions []domain.Question) {
	e.cancelQuestionTimerLocked(room)
	room.questions = questions
	room.currentIndex = -1
	room.answers = make(map[string]*string)
	room.events = nil
	room.questionStartedAt = time.Time{}
	room.questionDuration = 0
	for _, player := range room.players {
		player.resetForGame()
	}
	log.Info().Str("room", room.id).Int("questions", len(questions)).Msg("game started")
	e.showNextQuestionLocked(room)
}

// ShowNextQuestion advances the room to the next question, or to the final
// scoreboard when the question list is exhausted.
func (e *RoomEngine) ShowNextQuestion(roomID string) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e.showNextQuestionLocked(room)
	return nil
}

func (e *RoomEngine) showNextQuestionLocked(room *Room) {
	e.cancelQuestionTimerLocked(room)
	room.currentIndex++
	room.answers = make(map[string]*string)
	for _, player := range room.players {
		player.resetForQuestion()
	}

	if room.currentIndex >= len(room.questions) {
		room.questionStartedAt = time.Time{}
		room.questionDuration = 0
		e.broadcastLocked(room, domain.EventShowFinal, domain.ShowFinalPayload{
			Scoreboard: buildScoreboardLocked(room),
			ServerTime: e.serverTime(),
		})
		return
	}

	question := room.questions[room.currentIndex]
	duration := question.DurationSeconds
	if duration <= 0 {
		duration = domain.DefaultQuestionDuration
	}
	room.questionDuration = duration
	room.questionStartedAt = e.now()

	e.broadcastLocked(room, domain.EventShowQuestion, domain.ShowQuestionPayload{
		Question:          question.Sanitized(),
		QuestionNumber:    room.currentIndex + 1,
		TotalQuestions:    len(room.questions),
		QuestionStartedAt: formatTime(room.questionStartedAt),
		QuestionDuration:  duration,
		ServerTime:        e.serverTime(),
	})

	if duration > 0 {
		handle := &timerHandle{}
		handle.timer = e.clock.AfterFunc(time.Duration(duration)*time.Second, func() {
			e.handleQuestionTimeout(room, handle)
		})
		room.questionTimer = handle
	}
}

// SubmitAnswer records a player's raw answer for the active question.
// Answers before any question starts, out-of-range answers and duplicate
// answers are silently ignored; only an unknown room or player is an error.
func (e *RoomEngine) SubmitAnswer(roomID, playerName, answer string) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	player, ok := room.players[playerName]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if room.questionStartedAt.IsZero() || !room.questionActiveLocked() || player.Answered {
		return nil
	}

	raw := answer
	room.answers[playerName] = &raw
	player.Answered = true

	now := e.now()
	player.LastAnsweredAt = now

	seconds := now.Sub(room.questionStartedAt).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	if room.questionDuration > 0 && seconds > float64(room.questionDuration) {
		seconds = float64(room.questionDuration)
	}
	player.LastResponseTime = &seconds
	player.recordResponseTime(seconds)

	if allAnsweredLocked(room) {
		e.cancelQuestionTimerLocked(room)
		for name, p := range room.players {
			if _, ok := room.answers[name]; !ok {
				room.answers[name] = nil
				if !p.Answered {
					p.LastResponseTime = nil
				}
			}
		}
		e.concludeQuestionLocked(room)
	}
	return nil
}

// handleQuestionTimeout fires when the answer window elapses. It acts only
// if its handle is still the room's current timer; a timeout superseded by
// an all-answered quorum or a new question exits without side effects.
func (e *RoomEngine) handleQuestionTimeout(room *Room, handle *timerHandle) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.questionTimer != handle {
		return
	}
	// Vacate the slot before acting so no later cancellation in this
	// transition can target the firing timer itself.
	room.questionTimer = nil

	for name, player := range room.players {
		if _, ok := room.answers[name]; !ok {
			room.answers[name] = nil
		}
		if !player.Answered {
			player.Answered = true
			player.LastResponseTime = nil
		}
	}
	log.Debug().Str("room", room.id).Int("question", room.currentIndex+1).Msg("question timed out")
	e.concludeQuestionLocked(room)
}

// concludeQuestionLocked broadcasts the results for the current question
// and moves on. Callers have already backfilled missing answers.
func (e *RoomEngine) concludeQuestionLocked(room *Room) {
	e.broadcastLocked(room, domain.EventShowResults, e.buildResultsLocked(room))
	e.showNextQuestionLocked(room)
}

// cancelQuestionTimerLocked aborts the outstanding question timer, if any.
// A firing handler clears the slot before acting, so this can never stop
// the timer whose callback is currently running.
func (e *RoomEngine) cancelQuestionTimerLocked(room *Room) {
	if room.questionTimer != nil {
		room.questionTimer.timer.Stop()
	}
	room.questionTimer = nil
}
