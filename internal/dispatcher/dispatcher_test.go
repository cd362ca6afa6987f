package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"podcast_ingest/internal/dispatcher/mocks"
	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/storage/postgres"
)

type DispatcherTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	jobs  *mocks.MockJobStore
	queue *mocks.MockJobQueue

	dispatcher *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.queue = mocks.NewMockJobQueue(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.dispatcher = New(s.jobs, s.queue, logger)
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) TestSubmit_RecordsAndPublishes() {
	ctx := context.Background()
	req := JobRequest{
		RSSURL:             "https://example.com/feed.xml",
		NumEpisodes:        2,
		SampleDuration:     30,
		OpenAIAPIKey:       "sk-test",
		AlgoliaAppID:       "app",
		AlgoliaWriteAPIKey: "key",
	}

	var createdJob *domain.Job
	s.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.Job) error {
			createdJob = job
			return nil
		},
	)

	var published *queue.JobMessage
	s.queue.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *queue.JobMessage) error {
			published = msg
			return nil
		},
	)

	jobID, err := s.dispatcher.Submit(ctx, req)

	s.NoError(err)
	s.NotEmpty(jobID)
	s.Equal(domain.JobQueued, createdJob.Status)
	s.Equal(jobID, createdJob.ID)
	s.Equal(jobID, published.JobID)
	s.Equal("sk-test", published.OpenAIAPIKey)
	s.Equal(2, published.NumEpisodes)
}

func (s *DispatcherTestSuite) TestSubmit_StoreFailure() {
	ctx := context.Background()

	s.jobs.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("db down"))

	_, err := s.dispatcher.Submit(ctx, JobRequest{RSSURL: "https://example.com/feed.xml"})
	s.Error(err)
}

func (s *DispatcherTestSuite) TestStatus_FromStore() {
	ctx := context.Background()
	errMsg := "transcription failed"
	job := &domain.Job{
		ID:           "job-1",
		Status:       domain.JobFailed,
		RSSURL:       "https://example.com/feed.xml",
		ErrorMessage: &errMsg,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	s.jobs.EXPECT().Get(ctx, "job-1").Return(job, nil)

	view, err := s.dispatcher.Status(ctx, "job-1")

	s.NoError(err)
	s.Equal(domain.JobFailed, view.Status)
	s.Equal(errMsg, view.ErrorMessage)
	s.Empty(view.Episodes)
}

func (s *DispatcherTestSuite) TestStatus_CompletedParsesOutput() {
	ctx := context.Background()
	output := `[{"title":"Ep","transcription_preview":"short","full_transcription":"short"}]`
	job := &domain.Job{
		ID:         "job-2",
		Status:     domain.JobCompleted,
		OutputData: &output,
	}

	s.jobs.EXPECT().Get(ctx, "job-2").Return(job, nil)

	view, err := s.dispatcher.Status(ctx, "job-2")

	s.NoError(err)
	s.Len(view.Episodes, 1)
	s.Equal("Ep", view.Episodes[0].Title)
}

func (s *DispatcherTestSuite) TestStatus_MalformedOutputDegrades() {
	ctx := context.Background()
	output := `{not json`
	job := &domain.Job{
		ID:         "job-3",
		Status:     domain.JobCompleted,
		OutputData: &output,
	}

	s.jobs.EXPECT().Get(ctx, "job-3").Return(job, nil)

	view, err := s.dispatcher.Status(ctx, "job-3")

	s.NoError(err)
	s.Empty(view.Episodes)
}

func (s *DispatcherTestSuite) TestStatus_FallsBackToSubmissionRecord() {
	ctx := context.Background()

	// A submission whose row write failed is still visible as queued.
	s.jobs.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	jobID, err := s.dispatcher.Submit(ctx, JobRequest{RSSURL: "https://example.com/feed.xml"})
	s.Require().NoError(err)

	s.jobs.EXPECT().Get(ctx, jobID).Return(nil, postgres.ErrJobNotFound)

	view, err := s.dispatcher.Status(ctx, jobID)

	s.NoError(err)
	s.Equal(domain.JobQueued, view.Status)
	s.Equal(jobID, view.JobID)
}

func (s *DispatcherTestSuite) TestStatus_UnknownEverywhere() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, "missing").Return(nil, postgres.ErrJobNotFound)

	_, err := s.dispatcher.Status(ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *DispatcherTestSuite) TestStatus_LookupFailure() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, "job-4").Return(nil, errors.New("db down"))

	_, err := s.dispatcher.Status(ctx, "job-4")
	s.Error(err)
	s.NotErrorIs(err, ErrNotFound)
}
