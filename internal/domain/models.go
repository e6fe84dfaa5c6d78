package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultQuestionDuration is used when a question carries no usable
// duration of its own.
const DefaultQuestionDuration = 30

// Option is one selectable answer. IDs are short letter codes ("A", "B"...)
// assigned by the quiz content pipeline.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single quiz question. The wire form is loose (the duration
// may arrive under several legacy keys, the weight may be a number or a
// decimal string), so decoding normalizes everything into typed fields here
// instead of letting key typos slip through as missing values.
//
// CorrectOption and ScoreWeight are host-side secrets; Sanitized strips
// them before any broadcast.
type Question struct {
	ID          string
	Text        string
	Description string
	Options     []Option

	// CorrectOption holds the ID of the right option; empty means the
	// content had no marker and no answer is ever judged correct.
	CorrectOption string

	// ScoreWeight is the raw weight text ("2", "2.5", "2,5"); empty means
	// the default weight of 1. Parsing is the scoring engine's job.
	ScoreWeight string

	// DurationSeconds is the resolved answer window; 0 means unset and
	// callers fall back to DefaultQuestionDuration.
	DurationSeconds int
}

// durationKeys are the recognized aliases for a question's answer window,
// in priority order.
var durationKeys = []string{"timer", "time_limit", "duration", "question_duration"}

func (q *Question) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID            json.RawMessage `json:"id"`
		Text          string          `json:"text"`
		Description   string          `json:"description"`
		Options       []Option        `json:"options"`
		CorrectOption string          `json:"correct_option"`
		Score         json.RawMessage `json:"score"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	q.ID = rawToString(wire.ID)
	q.Text = wire.Text
	q.Description = wire.Description
	q.Options = wire.Options
	q.CorrectOption = wire.CorrectOption
	q.ScoreWeight = rawToString(wire.Score)

	q.DurationSeconds = 0
	for _, key := range durationKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if seconds, ok := rawToPositiveInt(value); ok {
			q.DurationSeconds = seconds
			break
		}
	}
	return nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	wire := struct {
		ID            string   `json:"id"`
		Text          string   `json:"text,omitempty"`
		Description   string   `json:"description,omitempty"`
		Options       []Option `json:"options,omitempty"`
		CorrectOption string   `json:"correct_option,omitempty"`
		Score         string   `json:"score,omitempty"`
		Timer         int      `json:"timer,omitempty"`
	}{
		ID:            q.ID,
		Text:          q.Text,
		Description:   q.Description,
		Options:       q.Options,
		CorrectOption: q.CorrectOption,
		Score:         q.ScoreWeight,
		Timer:         q.DurationSeconds,
	}
	return json.Marshal(wire)
}

// SanitizedQuestion is the broadcast-safe view of a question: no correct
// marker, no score weight.
type SanitizedQuestion struct {
	ID          string   `json:"id"`
	Text        string   `json:"text,omitempty"`
	Description string   `json:"description,omitempty"`
	Options     []Option `json:"options"`
}

// Sanitized returns the question with the answer marker and weight removed.
func (q Question) Sanitized() SanitizedQuestion {
	options := q.Options
	if options == nil {
		options = []Option{}
	}
	return SanitizedQuestion{
		ID:          q.ID,
		Text:        q.Text,
		Description: q.Description,
		Options:     options,
	}
}

// Quiz is an ordered set of questions under a stable id.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// rawToString renders a raw JSON scalar as its textual form: strings are
// unquoted, numbers keep their literal spelling, anything else is empty.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// rawToPositiveInt parses a raw JSON value as a positive whole number of
// seconds, tolerating both numeric and string forms.
func rawToPositiveInt(raw json.RawMessage) (int, bool) {
	text := strings.TrimSpace(rawToString(raw))
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	seconds := int(f)
	if float64(seconds) != f || seconds <= 0 {
		return 0, false
	}
	return seconds, true
}
