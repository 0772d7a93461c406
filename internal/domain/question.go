package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names used by question documents in the store.
const (
	FieldQuestion    = "Question"
	FieldAnswer      = "Answer"
	FieldExplanation = "Explanation"
)

// OptionFields lists the option field names in display order.
var OptionFields = [4]string{"Option A", "Option B", "Option C", "Option D"}

// OptionLabels are the display labels matching OptionFields.
var OptionLabels = [4]string{"A", "B", "C", "D"}

// QuestionRecord is one question as stored. Fields are raw; empty means missing.
type QuestionRecord struct {
	Question    string
	Options     [4]string
	Answer      string
	Explanation string
}

// Poll is a question validated for publishing as a quiz poll.
type Poll struct {
	Question     string
	Options      [4]string
	CorrectIndex int
	Explanation  string // empty means "use the channel fallback"
}

// RecordFromDocument converts an order-insensitive store document into a QuestionRecord.
// Non-string values are formatted; NaN and nil are treated as missing.
func RecordFromDocument(doc map[string]any) QuestionRecord {
	rec := QuestionRecord{
		Question:    fieldString(doc[FieldQuestion]),
		Answer:      fieldString(doc[FieldAnswer]),
		Explanation: fieldString(doc[FieldExplanation]),
	}
	for i, name := range OptionFields {
		rec.Options[i] = fieldString(doc[name])
	}
	return rec
}

// CorrectOptionIndex maps an answer key (a-d, case-insensitive) to an option index.
func CorrectOptionIndex(answer string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "a":
		return 0, true
	case "b":
		return 1, true
	case "c":
		return 2, true
	case "d":
		return 3, true
	}
	return 0, false
}

// Poll validates the record. Records whose answer does not name one of the four
// options, or that lack the text a poll needs, are rejected with ErrMalformedQuestion.
func (r QuestionRecord) Poll() (Poll, error) {
	idx, ok := CorrectOptionIndex(r.Answer)
	if !ok {
		return Poll{}, fmt.Errorf("%w: answer %q is not one of a, b, c, d", ErrMalformedQuestion, r.Answer)
	}
	question := strings.TrimSpace(r.Question)
	if question == "" {
		return Poll{}, fmt.Errorf("%w: question text is empty", ErrMalformedQuestion)
	}
	var options [4]string
	for i, opt := range r.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return Poll{}, fmt.Errorf("%w: %s is empty", ErrMalformedQuestion, OptionFields[i])
		}
		options[i] = opt
	}
	return Poll{
		Question:     question,
		Options:      options,
		CorrectIndex: idx,
		Explanation:  strings.TrimSpace(r.Explanation),
	}, nil
}

func fieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		if math.IsNaN(float64(val)) {
			return ""
		}
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
