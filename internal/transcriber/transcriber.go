// Package transcriber converts local audio samples to text via the OpenAI
// Whisper API.
package transcriber

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind tags expected transcription failure modes so callers can branch
// without string matching.
type ErrorKind string

const (
	// KindMissingCredential means no API key was provided; nothing was sent
	// to the remote service.
	KindMissingCredential ErrorKind = "missing_credential"
	// KindMissingPath means no audio path was provided; nothing was sent to
	// the remote service.
	KindMissingPath ErrorKind = "missing_path"
	// KindRemote wraps any failure returned by the transcription service.
	KindRemote ErrorKind = "remote"
)

// Error is the typed failure returned for every expected failure mode.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transcription failed (%s)", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// OpenAI transcribes audio files with the Whisper API. A zero-value API key
// is detected locally; no request is attempted.
type OpenAI struct {
	client *openai.Client
	apiKey string
	logger *slog.Logger
}

// New builds a transcriber scoped to one credential. Callers construct a
// fresh instance per request so keys are never shared across runs.
func New(apiKey string, logger *slog.Logger) *OpenAI {
	t := &OpenAI{
		apiKey: apiKey,
		logger: logger.With("component", "transcriber"),
	}
	if apiKey != "" {
		t.client = openai.NewClient(apiKey)
	}
	return t
}

// Transcribe sends the audio file at path to the Whisper API and returns the
// transcribed text. All expected failures come back as *Error.
func (t *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", &Error{Kind: KindMissingPath}
	}
	if t.apiKey == "" || t.client == nil {
		return "", &Error{Kind: KindMissingCredential}
	}

	t.logger.Info("transcribing audio sample", "path", path)

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
	})
	if err != nil {
		return "", &Error{Kind: KindRemote, Err: err}
	}

	t.logger.Info("transcription complete", "path", path, "chars", len(resp.Text))

	return resp.Text, nil
}
