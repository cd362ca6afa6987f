package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/worker/mocks"
	"podcast_ingest/internal/workflow"
)

type WorkerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	jobs   *mocks.MockJobStore
	runner *mocks.MockRunner

	logger *slog.Logger
}

func (s *WorkerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.runner = mocks.NewMockRunner(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *WorkerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) newWorker(factory RunnerFactory) *Worker {
	return New(mocks.NewMockJobSource(s.ctrl), s.jobs, factory, time.Minute, s.logger)
}

func (s *WorkerTestSuite) fixedRunner() RunnerFactory {
	return func(*queue.JobMessage) (Runner, error) { return s.runner, nil }
}

func (s *WorkerTestSuite) TestHandle_Completed() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-1", RSSURL: "https://example.com/feed.xml", NumEpisodes: 1, SampleDuration: 60}

	result := &workflow.Result{
		Episodes: []domain.EpisodeResult{{Title: "Ep", TranscriptionPreview: "p", FullTranscription: "p"}},
	}

	var output *string
	gomock.InOrder(
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-1", domain.JobProcessing, nil, nil).Return(nil),
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-1", domain.JobCompleted, gomock.Any(), nil).DoAndReturn(
			func(_ context.Context, _ string, _ domain.JobStatus, out, _ *string) error {
				output = out
				return nil
			},
		),
	)

	s.runner.EXPECT().Run(gomock.Any(), workflow.Request{
		RSSURL:         "https://example.com/feed.xml",
		NumEpisodes:    1,
		SampleDuration: 60,
	}).Return(result, nil)

	s.newWorker(s.fixedRunner()).Handle(ctx, msg)

	s.Require().NotNil(output)
	s.JSONEq(`[{"title":"Ep","transcription_preview":"p","full_transcription":"p"}]`, *output)
}

func (s *WorkerTestSuite) TestHandle_WorkflowErrorMarksFailed() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-2"}

	var errMsg *string
	gomock.InOrder(
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-2", domain.JobProcessing, nil, nil).Return(nil),
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-2", domain.JobFailed, nil, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, _ domain.JobStatus, _, em *string) error {
				errMsg = em
				return nil
			},
		),
	)

	s.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, &workflow.RunError{
		Kind:    workflow.KindTranscriptionFailed,
		Message: "transcription failed",
	})

	s.newWorker(s.fixedRunner()).Handle(ctx, msg)

	s.Require().NotNil(errMsg)
	s.Contains(*errMsg, "transcription failed")
}

func (s *WorkerTestSuite) TestHandle_FactoryErrorMarksFailed() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-3"}

	gomock.InOrder(
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobProcessing, nil, nil).Return(nil),
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobFailed, nil, gomock.Any()).Return(nil),
	)

	factory := func(*queue.JobMessage) (Runner, error) {
		return nil, errors.New("bad credentials")
	}

	s.newWorker(factory).Handle(ctx, msg)
}

func (s *WorkerTestSuite) TestHandle_PanicMarksFailed() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-4"}

	var errMsg *string
	gomock.InOrder(
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-4", domain.JobProcessing, nil, nil).Return(nil),
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-4", domain.JobFailed, nil, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, _ domain.JobStatus, _, em *string) error {
				errMsg = em
				return nil
			},
		),
	)

	s.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, workflow.Request) (*workflow.Result, error) {
			panic("boom")
		},
	)

	s.newWorker(s.fixedRunner()).Handle(ctx, msg)

	s.Require().NotNil(errMsg)
	s.Contains(*errMsg, "unhandled error in worker")
}

func (s *WorkerTestSuite) TestHandle_TimeoutMarksFailed() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-5"}

	var errMsg *string
	gomock.InOrder(
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-5", domain.JobProcessing, nil, nil).Return(nil),
		s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-5", domain.JobFailed, nil, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, _ domain.JobStatus, _, em *string) error {
				errMsg = em
				return nil
			},
		),
	)

	s.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(runCtx context.Context, _ workflow.Request) (*workflow.Result, error) {
			<-runCtx.Done()
			return nil, runCtx.Err()
		},
	)

	w := New(mocks.NewMockJobSource(s.ctrl), s.jobs, s.fixedRunner(), 10*time.Millisecond, s.logger)
	w.Handle(ctx, msg)

	s.Require().NotNil(errMsg)
	s.Contains(*errMsg, "timed out")
}

func (s *WorkerTestSuite) TestHandle_ProcessingUpdateFailureStops() {
	ctx := context.Background()
	msg := &queue.JobMessage{JobID: "job-6"}

	s.jobs.EXPECT().UpdateStatus(gomock.Any(), "job-6", domain.JobProcessing, nil, nil).Return(errors.New("db down"))

	// No runner call and no further status writes.
	s.newWorker(s.fixedRunner()).Handle(ctx, msg)
}
