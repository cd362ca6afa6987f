package domain

import "time"

// JobStatus is the lifecycle state of an asynchronous workflow invocation.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition may occur.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one asynchronous invocation of the workflow, tracked by ID.
// OutputData holds serialized []EpisodeResult once completed; ErrorMessage is
// set only on failure.
type Job struct {
	ID             string    `db:"id"`
	Status         JobStatus `db:"status"`
	RSSURL         string    `db:"rss_url"`
	NumEpisodes    int       `db:"num_episodes"`
	SampleDuration int       `db:"sample_duration"`
	OutputData     *string   `db:"output_data"`
	ErrorMessage   *string   `db:"error_message"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
