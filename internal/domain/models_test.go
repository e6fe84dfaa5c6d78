package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestQuestionDurationAliasResolution(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"timer wins", `{"id":"q","timer":15,"duration":40}`, 15},
		{"time_limit second", `{"id":"q","time_limit":25,"question_duration":60}`, 25},
		{"duration third", `{"id":"q","duration":45}`, 45},
		{"question_duration last", `{"id":"q","question_duration":50}`, 50},
		{"string form accepted", `{"id":"q","timer":"20"}`, 20},
		{"invalid alias falls through", `{"id":"q","timer":"soon","duration":35}`, 35},
		{"zero rejected", `{"id":"q","timer":0,"duration":35}`, 35},
		{"negative rejected", `{"id":"q","timer":-5}`, 0},
		{"fractional rejected", `{"id":"q","timer":12.5}`, 0},
		{"absent", `{"id":"q"}`, 0},
	}
	for _, tc := range cases {
		var q Question
		if err := json.Unmarshal([]byte(tc.body), &q); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if q.DurationSeconds != tc.want {
			t.Errorf("%s: duration = %d, want %d", tc.name, q.DurationSeconds, tc.want)
		}
	}
}

func TestQuestionScoreCapturedAsRawText(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"id":"q","score":2}`, "2"},
		{`{"id":"q","score":2.5}`, "2.5"},
		{`{"id":"q","score":"2,5"}`, "2,5"},
		{`{"id":"q"}`, ""},
	}
	for _, tc := range cases {
		var q Question
		if err := json.Unmarshal([]byte(tc.body), &q); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.body, err)
		}
		if q.ScoreWeight != tc.want {
			t.Errorf("%s: score = %q, want %q", tc.body, q.ScoreWeight, tc.want)
		}
	}
}

func TestQuestionUnmarshalFullShape(t *testing.T) {
	body := `{
		"id": 7,
		"text": "Pick one",
		"description": "No pressure",
		"options": [{"id":"A","text":"yes"},{"id":"B","text":"no"}],
		"correct_option": "B",
		"score": "1,5",
		"time_limit": 40
	}`
	var q Question
	if err := json.Unmarshal([]byte(body), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if q.ID != "7" {
		t.Fatalf("numeric id should keep its spelling, got %q", q.ID)
	}
	if q.Text != "Pick one" || q.Description != "No pressure" {
		t.Fatalf("text fields wrong: %+v", q)
	}
	if len(q.Options) != 2 || q.Options[1].ID != "B" {
		t.Fatalf("options wrong: %+v", q.Options)
	}
	if q.CorrectOption != "B" || q.ScoreWeight != "1,5" || q.DurationSeconds != 40 {
		t.Fatalf("secrets/duration wrong: %+v", q)
	}
}

func TestSanitizedStripsSecrets(t *testing.T) {
	q := Question{
		ID:            "q1",
		Text:          "hello",
		Options:       []Option{{ID: "A", Text: "yes"}},
		CorrectOption: "A",
		ScoreWeight:   "3",
	}
	data, err := json.Marshal(q.Sanitized())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "correct") || strings.Contains(s, "score") {
		t.Fatalf("sanitized question leaks secrets: %s", s)
	}
	if !strings.Contains(s, `"id":"q1"`) || !strings.Contains(s, `"options"`) {
		t.Fatalf("sanitized question lost content: %s", s)
	}
}

func TestSanitizedAlwaysHasOptionsArray(t *testing.T) {
	data, err := json.Marshal(Question{ID: "q1"}.Sanitized())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"options":[]`) {
		t.Fatalf("nil options must render as an empty array: %s", data)
	}
}

func TestQuestionMarshalRoundTrip(t *testing.T) {
	q := Question{
		ID:              "q1",
		Text:            "hi",
		Options:         []Option{{ID: "A"}},
		CorrectOption:   "A",
		ScoreWeight:     "2",
		DurationSeconds: 25,
	}
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Question
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.CorrectOption != "A" || back.ScoreWeight != "2" || back.DurationSeconds != 25 {
		t.Fatalf("round trip lost fields: %+v", back)
	}
}
