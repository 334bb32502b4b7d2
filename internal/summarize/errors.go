package summarize

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySegment is returned when CreateSummary gets no nodes.
	ErrEmptySegment = errors.New("cannot summarize an empty segment")

	// ErrEmptySummary is returned when the summarizer produced only blank
	// text. No summary node is written.
	ErrEmptySummary = errors.New("summarizer returned an empty summary")
)

// SummarizerError carries a failure reported by the summarizer in its
// result rather than as a Go error.
type SummarizerError struct {
	Message string
}

func (e *SummarizerError) Error() string {
	return fmt.Sprintf("summarizer failed: %s", e.Message)
}
