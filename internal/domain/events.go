package domain

import "encoding/json"

// Event names broadcast to room sockets.
const (
	EventPlayerJoined       = "player_joined"
	EventShowQuestion       = "show_question"
	EventShowResults        = "show_results"
	EventShowFinal          = "show_final"
	EventAutoStartScheduled = "auto_start_scheduled"
	EventAutoStartCancelled = "auto_start_cancelled"
	EventError              = "error"
)

// Event is one named state change with its payload, as appended to a room's
// event log and pushed to sockets in an {event, payload} envelope.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// PlayerJoinedPayload announces a (re)joining player together with the full
// sorted roster.
type PlayerJoinedPayload struct {
	Player  string   `json:"player"`
	Players []string `json:"players"`
}

// ShowQuestionPayload carries the sanitized active question.
type ShowQuestionPayload struct {
	Question          SanitizedQuestion `json:"question"`
	QuestionNumber    int               `json:"question_number"`
	TotalQuestions    int               `json:"total_questions"`
	QuestionStartedAt string            `json:"question_started_at,omitempty"`
	QuestionDuration  int               `json:"question_duration,omitempty"`
	ServerTime        string            `json:"server_time"`
}

// AnswerReview is one player's outcome for a finished question. Answer is
// null for players that never submitted; ResponseTime is null when no timed
// answer was recorded.
type AnswerReview struct {
	Player       string      `json:"player"`
	Answer       *string     `json:"answer"`
	IsCorrect    bool        `json:"is_correct"`
	Score        json.Number `json:"score"`
	Answered     bool        `json:"answered"`
	ResponseTime *float64    `json:"response_time"`
}

// ScoreboardEntry is one row of the ordered scoreboard.
type ScoreboardEntry struct {
	Player              string      `json:"player"`
	Score               json.Number `json:"score"`
	AnsweredCount       int         `json:"answered_count"`
	TotalResponseTime   float64     `json:"total_response_time"`
	AverageResponseTime *float64    `json:"average_response_time"`
}

// ShowResultsPayload closes out a question: the revealed answer, the
// per-player outcomes, and the standings so far.
type ShowResultsPayload struct {
	QuestionID        string            `json:"question_id"`
	CorrectAnswer     string            `json:"correct_answer"`
	Results           []AnswerReview    `json:"results"`
	Scoreboard        []ScoreboardEntry `json:"scoreboard"`
	QuestionStartedAt string            `json:"question_started_at,omitempty"`
	QuestionDuration  int               `json:"question_duration,omitempty"`
	ServerTime        string            `json:"server_time"`
}

// ShowFinalPayload ends the game with the final standings.
type ShowFinalPayload struct {
	Scoreboard []ScoreboardEntry `json:"scoreboard"`
	ServerTime string            `json:"server_time"`
}

// AutoStartScheduledPayload announces a pending automatic game start.
type AutoStartScheduledPayload struct {
	ScheduledAt string  `json:"scheduled_at"`
	Delay       float64 `json:"delay"`
	Origin      string  `json:"origin"`
	ServerTime  string  `json:"server_time"`
}

// AutoStartCancelledPayload announces that a pending automatic start was
// called off. ScheduledAt is empty when nothing was actually pending.
type AutoStartCancelledPayload struct {
	ScheduledAt string `json:"scheduled_at,omitempty"`
	Origin      string `json:"origin"`
	Reason      string `json:"reason,omitempty"`
	ServerTime  string `json:"server_time"`
}

// ErrorPayload is sent only to the connection that triggered the failure,
// never broadcast.
type ErrorPayload struct {
	Message string `json:"message"`
}
