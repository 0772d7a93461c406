package domain

import "errors"

var (
	// ErrTemplateUnavailable is returned when the document template cannot be retrieved. Fatal to a run.
	ErrTemplateUnavailable = errors.New("template unavailable")
	// ErrAssemblyDegraded reports that the content markers were missing and the template was left as is.
	ErrAssemblyDegraded = errors.New("content markers not found")
	// ErrConversionFailed indicates the external converter failed or produced no output. Fatal to a run.
	ErrConversionFailed = errors.New("document conversion failed")
	// ErrChannelDeliveryFailed wraps any failure to deliver a single message to the channel.
	ErrChannelDeliveryFailed = errors.New("channel delivery failed")
	// ErrMalformedQuestion marks a record that cannot be published as a poll.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrCounterAllocation is returned when quiz numbering could not be allocated.
	ErrCounterAllocation = errors.New("counter allocation failed")
	// ErrRunInProgress is returned when another run holds the lock for the same topic.
	ErrRunInProgress = errors.New("quiz run already in progress")
	// ErrNoTopics indicates the question store has no selectable topics.
	ErrNoTopics = errors.New("no topics available")
)
