package core

import (
	"errors"
	"fmt"
	"strings"
)

// InputError rejects a malformed request before synthesis starts. It is the
// only error class that aborts a run; every other condition degrades.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Reason
}

// IsInputError reports whether err is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// ExtractionError records a single source whose text could not be processed.
// The run continues: that source contributes an empty extraction and a
// credibility score of 0.
type ExtractionError struct {
	SourceID string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction degraded for source %s: %v", e.SourceID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrEnrichmentUnavailable marks an LLM call that failed or returned
// unparseable output. Callers fall back to the heuristic extractor and log;
// the condition is never surfaced as a user-facing error.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// CitationWarning enumerates missing fields on a citation record. Formatting
// proceeds with placeholders; warnings are collected on the bibliography.
type CitationWarning struct {
	RecordID string
	Missing  []string
}

func (w CitationWarning) String() string {
	return fmt.Sprintf("citation %s missing %s", w.RecordID, strings.Join(w.Missing, ", "))
}
