package workflow

import "fmt"

// ErrorKind classifies run-fatal failures.
type ErrorKind string

const (
	// KindTranscriptionFailed means the transcription service rejected a
	// sample. Treated as a credential/service problem, so the whole run
	// aborts instead of burning quota on the remaining episodes.
	KindTranscriptionFailed ErrorKind = "transcription_failed"
	// KindUnexpected covers everything else that escaped an episode's
	// processing, including storage failures and recovered panics.
	KindUnexpected ErrorKind = "unexpected"
)

// RunError aborts a workflow run. It carries the status log accumulated up
// to the failure so callers can reconstruct what happened.
type RunError struct {
	Kind          ErrorKind
	Message       string
	StatusUpdates []string
	Err           error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RunError) Unwrap() error { return e.Err }
