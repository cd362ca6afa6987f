package domain

import "time"

// Episode is one feed entry with a resolvable audio URL.
type Episode struct {
	Title     string
	AudioURL  string
	Published *time.Time
}

// TranscriptRecord is the persisted transcript for one episode. Title is the
// primary key: reprocessing the same title replaces the prior transcript.
type TranscriptRecord struct {
	Title       string     `db:"title"`
	Transcript  string     `db:"transcript"`
	Published   *time.Time `db:"published"`
	ProcessedAt time.Time  `db:"processed_at"`
}

// EpisodeResult is the per-episode payload returned to callers and serialized
// into a completed job's output data.
type EpisodeResult struct {
	Title                string `json:"title"`
	TranscriptionPreview string `json:"transcription_preview"`
	FullTranscription    string `json:"full_transcription"`
}

// SearchRecord is the projection of a transcript into the search index shape.
// ObjectID is derived from the episode title so index dedup follows the same
// key as the transcript store.
type SearchRecord struct {
	ObjectID      string `json:"objectID"`
	Title         string `json:"title"`
	Transcription string `json:"transcription"`
}

const previewLen = 200

// NewEpisodeResult builds a result with the transcription preview truncated
// to 200 characters.
func NewEpisodeResult(title, transcription string) EpisodeResult {
	preview := transcription
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	return EpisodeResult{
		Title:                title,
		TranscriptionPreview: preview,
		FullTranscription:    transcription,
	}
}
