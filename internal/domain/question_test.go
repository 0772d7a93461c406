package domain

import (
	"errors"
	"math"
	"testing"
)

func TestRecordFromDocument(t *testing.T) {
	rec := RecordFromDocument(map[string]any{
		"Question":    " Capital of Gujarat? ",
		"Option A":    "Surat",
		"Option B":    "Gandhinagar",
		"Option C":    int32(3),
		"Answer":      "B",
		"Explanation": math.NaN(),
		"_id":         "ignored",
	})

	if rec.Question != "Capital of Gujarat?" {
		t.Fatalf("question not trimmed: %q", rec.Question)
	}
	if rec.Options[2] != "3" {
		t.Fatalf("expected numeric option formatted, got %q", rec.Options[2])
	}
	if rec.Options[3] != "" {
		t.Fatalf("expected missing option to be empty, got %q", rec.Options[3])
	}
	if rec.Explanation != "" {
		t.Fatalf("expected NaN explanation to be treated as missing, got %q", rec.Explanation)
	}
}

func TestCorrectOptionIndex(t *testing.T) {
	tests := []struct {
		answer string
		want   int
		ok     bool
	}{
		{"a", 0, true},
		{"B", 1, true},
		{" c ", 2, true},
		{"D", 3, true},
		{"e", 0, false},
		{"", 0, false},
		{"ab", 0, false},
	}
	for _, tc := range tests {
		got, ok := CorrectOptionIndex(tc.answer)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("CorrectOptionIndex(%q) = %d,%v want %d,%v", tc.answer, got, ok, tc.want, tc.ok)
		}
	}
}

func TestQuestionRecordPoll(t *testing.T) {
	rec := QuestionRecord{
		Question: "2 + 2?",
		Options:  [4]string{"3", "4", "5", "6"},
		Answer:   "b",
	}
	poll, err := rec.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if poll.CorrectIndex != 1 {
		t.Fatalf("expected index 1, got %d", poll.CorrectIndex)
	}
	if poll.Explanation != "" {
		t.Fatalf("expected empty explanation, got %q", poll.Explanation)
	}

	rec.Answer = "z"
	if _, err := rec.Poll(); !errors.Is(err, ErrMalformedQuestion) {
		t.Fatalf("expected ErrMalformedQuestion for bad answer, got %v", err)
	}

	rec.Answer = "a"
	rec.Options[3] = " "
	if _, err := rec.Poll(); !errors.Is(err, ErrMalformedQuestion) {
		t.Fatalf("expected ErrMalformedQuestion for empty option, got %v", err)
	}
}
