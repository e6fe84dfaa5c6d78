package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a command names a room that was
	// never created.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a player acts in a room they
	// never joined.
	ErrPlayerNotFound = errors.New("player not registered in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions indicates the room's quiz has no questions to play.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrNoQuizAssigned indicates the room was created without a quiz.
	ErrNoQuizAssigned = errors.New("room has no quiz assigned")
	// ErrInvalidSchedule is returned when an explicit auto-start request
	// cannot be parsed; explicit requests are never silently defaulted.
	ErrInvalidSchedule = errors.New("invalid auto-start schedule")
)
