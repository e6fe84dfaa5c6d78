package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/domain"
)

// Auto-start cancellation reason used when the fire-time question load fails.
const reasonQuestionsUnavailable = "questions_unavailable"

// ScheduleAutoStart arranges for the game to start automatically at the
// given time, replacing any previously scheduled auto start. A target in
// the past fires immediately.
func (e *RoomEngine) ScheduleAutoStart(roomID string, at time.Time, origin string) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	e.cancelAutoStartTimerLocked(room)

	at = at.UTC()
	delay := at.Sub(e.now())
	if delay < 0 {
		delay = 0
	}

	handle := &timerHandle{}
	handle.timer = e.clock.AfterFunc(delay, func() {
		e.handleAutoStart(room, handle)
	})
	room.autoStart = handle
	room.autoStartAt = at
	room.autoStartOrigin = origin

	log.Info().Str("room", room.id).Time("at", at).Str("origin", origin).Msg("auto start scheduled")
	e.broadcastLocked(room, domain.EventAutoStartScheduled, domain.AutoStartScheduledPayload{
		ScheduledAt: formatTime(at),
		Delay:       delay.Seconds(),
		Origin:      origin,
		ServerTime:  e.serverTime(),
	})
	return nil
}

// CancelAutoStart aborts any pending auto start and clears the bookkeeping.
// Safe to call when nothing is scheduled, e.g. defensively from a manual
// start.
func (e *RoomEngine) CancelAutoStart(roomID, origin, reason string) error {
	room, ok := e.rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	scheduledAt := room.autoStartAt
	e.cancelAutoStartTimerLocked(room)

	payload := domain.AutoStartCancelledPayload{
		Origin:     origin,
		Reason:     reason,
		ServerTime: e.serverTime(),
	}
	if !scheduledAt.IsZero() {
		payload.ScheduledAt = formatTime(scheduledAt)
	}
	e.broadcastLocked(room, domain.EventAutoStartCancelled, payload)
	return nil
}

// handleAutoStart fires when the scheduled delay elapses. The question list
// is resolved before taking the room lock; the handle-identity check then
// decides whether this task is still the current one.
func (e *RoomEngine) handleAutoStart(room *Room, handle *timerHandle) {
	var questions []domain.Question
	var loadErr error
	if room.QuizID() == "" || e.quizzes == nil {
		loadErr = domain.ErrNoQuizAssigned
	} else {
		quiz, err := e.quizzes.GetQuiz(context.Background(), room.QuizID())
		switch {
		case err != nil:
			loadErr = err
		case len(quiz.Questions) == 0:
			loadErr = domain.ErrNoQuestions
		default:
			questions = quiz.Questions
		}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.autoStart != handle {
		return
	}
	origin := room.autoStartOrigin
	scheduledAt := room.autoStartAt
	// Vacate the slot before acting so the start path's defensive cancel
	// cannot target the firing task itself.
	room.autoStart = nil
	room.autoStartAt = time.Time{}
	room.autoStartOrigin = ""

	if loadErr != nil {
		log.Warn().Err(loadErr).Str("room", room.id).Str("origin", origin).Msg("auto start aborted")
		payload := domain.AutoStartCancelledPayload{
			Origin:     origin,
			Reason:     reasonQuestionsUnavailable,
			ServerTime: e.serverTime(),
		}
		if !scheduledAt.IsZero() {
			payload.ScheduledAt = formatTime(scheduledAt)
		}
		e.broadcastLocked(room, domain.EventAutoStartCancelled, payload)
		return
	}

	log.Info().Str("room", room.id).Str("origin", origin).Msg("auto start firing")
	e.startGameLocked(room, questions)
}

// cancelAutoStartTimerLocked aborts the outstanding auto-start task, if
// any, and clears all auto-start bookkeeping. The firing handler vacates
// the slot before acting, so self-cancellation cannot occur.
func (e *RoomEngine) cancelAutoStartTimerLocked(room *Room) {
	if room.autoStart != nil {
		room.autoStart.timer.Stop()
	}
	room.autoStart = nil
	room.autoStartAt = time.Time{}
	room.autoStartOrigin = ""
}

// AutoStartPending reports the currently scheduled auto start, if any.
func (e *RoomEngine) AutoStartPending(roomID string) (at time.Time, origin string, ok bool) {
	room, found := e.rooms.GetRoom(roomID)
	if !found {
		return time.Time{}, "", false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.autoStart == nil {
		return time.Time{}, "", false
	}
	return room.autoStartAt, room.autoStartOrigin, true
}
