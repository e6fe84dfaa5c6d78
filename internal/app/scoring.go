package app

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"quiz-room-service/internal/domain"
)

// scorePrecision is the fixed fractional precision scores are rounded to
// (half-up) after every accumulation.
const scorePrecision = 4

var defaultWeight = decimal.NewFromInt(1)

// parseScoreWeight reads a question's weight from its raw text form.
// Numeric strings with either a comma or a dot separator are accepted;
// anything unparseable falls back to the default weight of 1.
func parseScoreWeight(raw string) decimal.Decimal {
	text := strings.TrimSpace(raw)
	if text == "" {
		return defaultWeight
	}
	text = strings.ReplaceAll(text, ",", ".")
	weight, err := decimal.NewFromString(text)
	if err != nil {
		return defaultWeight
	}
	return weight
}

// normalizeScore rounds half-up to the fixed precision so repeated
// fractional weights never drift the way floats would.
func normalizeScore(score decimal.Decimal) decimal.Decimal {
	return score.Round(scorePrecision)
}

// scoreNumber renders a score as a plain JSON number, as an integer when
// numerically whole.
func scoreNumber(score decimal.Decimal) json.Number {
	if score.IsInteger() {
		return json.Number(score.Truncate(0).String())
	}
	return json.Number(score.String())
}

// buildResultsLocked reveals the current question: it judges every
// registered player's recorded answer, credits correct answers with the
// question's weight, and assembles the results plus standings.
func (e *RoomEngine) buildResultsLocked(room *Room) domain.ShowResultsPayload {
	question := room.questions[room.currentIndex]
	weight := parseScoreWeight(question.ScoreWeight)

	results := make([]domain.AnswerReview, 0, len(room.players))
	for _, name := range playerNamesLocked(room) {
		player := room.players[name]
		answer := room.answers[name]
		isCorrect := answer != nil && question.CorrectOption != "" && *answer == question.CorrectOption
		if isCorrect {
			player.Score = normalizeScore(player.Score.Add(weight))
		}
		results = append(results, domain.AnswerReview{
			Player:       name,
			Answer:       answer,
			IsCorrect:    isCorrect,
			Score:        scoreNumber(player.Score),
			Answered:     player.Answered,
			ResponseTime: player.LastResponseTime,
		})
	}

	payload := domain.ShowResultsPayload{
		QuestionID:       question.ID,
		CorrectAnswer:    question.CorrectOption,
		Results:          results,
		Scoreboard:       buildScoreboardLocked(room),
		QuestionDuration: room.questionDuration,
		ServerTime:       e.serverTime(),
	}
	if !room.questionStartedAt.IsZero() {
		payload.QuestionStartedAt = formatTime(room.questionStartedAt)
	}
	return payload
}

// scoreboardRow keeps the decimal score alongside the wire entry so sorting
// compares exact values, not rendered strings.
type scoreboardRow struct {
	entry domain.ScoreboardEntry
	score decimal.Decimal
}

// buildScoreboardLocked assembles the ordered standings: score descending,
// then answered-count descending, then average response time ascending with
// entries lacking an average last, then player name.
func buildScoreboardLocked(room *Room) []domain.ScoreboardEntry {
	rows := make([]scoreboardRow, 0, len(room.players))
	for _, player := range room.players {
		answeredCount := len(player.ResponseTimes)
		total := 0.0
		var average *float64
		if answeredCount > 0 {
			total = player.TotalResponseTime
			avg := total / float64(answeredCount)
			average = &avg
		}
		rows = append(rows, scoreboardRow{
			entry: domain.ScoreboardEntry{
				Player:              player.Name,
				Score:               scoreNumber(player.Score),
				AnsweredCount:       answeredCount,
				TotalResponseTime:   total,
				AverageResponseTime: average,
			},
			score: player.Score,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if cmp := a.score.Cmp(b.score); cmp != 0 {
			return cmp > 0
		}
		if a.entry.AnsweredCount != b.entry.AnsweredCount {
			return a.entry.AnsweredCount > b.entry.AnsweredCount
		}
		aAvg, bAvg := a.entry.AverageResponseTime, b.entry.AverageResponseTime
		switch {
		case aAvg != nil && bAvg != nil && *aAvg != *bAvg:
			return *aAvg < *bAvg
		case aAvg == nil && bAvg != nil:
			return false
		case aAvg != nil && bAvg == nil:
			return true
		}
		return a.entry.Player < b.entry.Player
	})

	entries := make([]domain.ScoreboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.entry
	}
	return entries
}
