package domain

import "time"

// DefaultHandle is the channel handle shown when none is configured.
const DefaultHandle = "@CurrentAdda"

// QuizRun is the state of one pipeline execution. It is not persisted beyond the
// counters it allocates.
type QuizRun struct {
	ID           string
	Topic        string
	Day          int
	TopicNumber  int
	GlobalNumber int
	Questions    []QuestionRecord
	Intro        Intro
}

// Intro holds the two renderings of the announcement text.
type Intro struct {
	Markdown string // sent to the channel and used as the document caption
	Plain    string // written into the document
}

// RunRequest selects what a run publishes. An empty Topic means "pick one".
type RunRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID          string `json:"runId"`
	Topic          string `json:"topic"`
	Day            int    `json:"day"`
	TopicNumber    int    `json:"topicNumber"`
	GlobalNumber   int    `json:"globalNumber"`
	Sampled        int    `json:"sampled"`
	Malformed      int    `json:"malformed"`
	PollsPublished int    `json:"pollsPublished"`
	PollsFailed    int    `json:"pollsFailed"`
	IntroPublished bool   `json:"introPublished"`
	DocumentSent   bool   `json:"documentSent"`
	Degraded       bool   `json:"degraded"`
	Skipped        bool   `json:"skipped"`
	ArtifactPath   string `json:"artifactPath,omitempty"`
}

// Stage names a pipeline step in run events.
type Stage string

const (
	StageCounters Stage = "counters"
	StageSample   Stage = "sample"
	StageTemplate Stage = "template"
	StageAssemble Stage = "assemble"
	StageIntro    Stage = "intro"
	StagePoll     Stage = "poll"
	StageConvert  Stage = "convert"
	StageDocument Stage = "document"
	StageDone     Stage = "done"
)

// EventStatus is the outcome attached to a RunEvent.
type EventStatus string

const (
	StatusStarted  EventStatus = "started"
	StatusOK       EventStatus = "ok"
	StatusSkipped  EventStatus = "skipped"
	StatusDegraded EventStatus = "degraded"
	StatusFailed   EventStatus = "failed"
)

// RunEvent is broadcast to observers as a run progresses.
type RunEvent struct {
	RunID   string      `json:"runId"`
	Topic   string      `json:"topic"`
	Stage   Stage       `json:"stage"`
	Status  EventStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	At      time.Time   `json:"at"`
}
