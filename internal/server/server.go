// Package server exposes the ingestion pipeline over HTTP: synchronous
// runs, queued job submission and job status polling.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"podcast_ingest/internal/dispatcher"
	"podcast_ingest/internal/workflow"
)

// Runner is one request-scoped workflow ready to execute.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

// WorkflowFactory builds a runner bound to the request's credentials.
type WorkflowFactory func(openaiAPIKey, algoliaAppID, algoliaWriteAPIKey string) (Runner, error)

// Submitter enqueues jobs and answers status queries. Nil when the server
// runs in synchronous mode.
type Submitter interface {
	Submit(ctx context.Context, req dispatcher.JobRequest) (string, error)
	Status(ctx context.Context, jobID string) (*dispatcher.JobView, error)
}

type Config struct {
	Port                  int
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	DefaultEpisodes       int
	DefaultSampleDuration int
}

type Server struct {
	config      Config
	newWorkflow WorkflowFactory
	submitter   Submitter
	httpServer  *http.Server
	logger      *slog.Logger
}

// New builds the server. When submitter is non-nil, /transcribe enqueues
// jobs instead of running them on the request goroutine.
func New(cfg Config, newWorkflow WorkflowFactory, submitter Submitter, logger *slog.Logger) *Server {
	s := &Server{
		config:      cfg,
		newWorkflow: newWorkflow,
		submitter:   submitter,
		logger:      logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /status/{job_id}", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

type transcribeRequest struct {
	RSSURL             string `json:"rss_url"`
	NumEpisodes        int    `json:"numEpisodes"`
	SampleDuration     int    `json:"sampleDuration"`
	OpenAIAPIKey       string `json:"openaiApiKey"`
	AlgoliaAppID       string `json:"algoliaAppId"`
	AlgoliaWriteAPIKey string `json:"algoliaWriteApiKey"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload."})
		return
	}

	// Validation happens before any network work.
	if req.RSSURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing 'rss_url' in request"})
		return
	}
	if req.OpenAIAPIKey == "" || req.AlgoliaAppID == "" || req.AlgoliaWriteAPIKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing one or more API keys in request payload."})
		return
	}

	if req.NumEpisodes <= 0 {
		req.NumEpisodes = s.config.DefaultEpisodes
	}
	if req.SampleDuration <= 0 {
		req.SampleDuration = s.config.DefaultSampleDuration
	}

	s.logger.Info("transcription request",
		"rss_url", req.RSSURL,
		"episodes", req.NumEpisodes,
		"sample_duration", req.SampleDuration,
		"queued", s.submitter != nil,
	)

	if s.submitter != nil {
		s.submitJob(w, r, req)
		return
	}
	s.runSync(w, r, req)
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request, req transcribeRequest) {
	jobID, err := s.submitter.Submit(r.Context(), dispatcher.JobRequest{
		RSSURL:             req.RSSURL,
		NumEpisodes:        req.NumEpisodes,
		SampleDuration:     req.SampleDuration,
		OpenAIAPIKey:       req.OpenAIAPIKey,
		AlgoliaAppID:       req.AlgoliaAppID,
		AlgoliaWriteAPIKey: req.AlgoliaWriteAPIKey,
	})
	if err != nil {
		s.logger.Error("job submission failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue transcription job."})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Transcription job queued.",
		"job_id":  jobID,
		"status":  "queued",
	})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request, req transcribeRequest) {
	wf, err := s.newWorkflow(req.OpenAIAPIKey, req.AlgoliaAppID, req.AlgoliaWriteAPIKey)
	if err != nil {
		s.logger.Error("workflow construction failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result, err := wf.Run(r.Context(), workflow.Request{
		RSSURL:         req.RSSURL,
		NumEpisodes:    req.NumEpisodes,
		SampleDuration: req.SampleDuration,
	})
	if err != nil {
		var runErr *workflow.RunError
		if errors.As(err, &runErr) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":          runErr.Error(),
				"status_updates": runErr.StatusUpdates,
			})
			return
		}
		s.logger.Error("workflow failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Transcription failed due to an internal server error."})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job queue is not enabled."})
		return
	}

	jobID := r.PathValue("job_id")
	view, err := s.submitter.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, dispatcher.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found."})
			return
		}
		s.logger.Error("status lookup failed", "job_id", jobID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to look up job status."})
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
