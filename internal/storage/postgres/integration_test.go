//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"podcast_ingest/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_transcripts.up.sql"),
			filepath.Join(migrationsPath, "002_create_jobs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM transcripts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM jobs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestTranscriptStore_Upsert_Insert() {
	store := NewTranscriptStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Upsert(s.ctx, &domain.TranscriptRecord{
		Title:       "Episode One",
		Transcript:  "hello world",
		Published:   &now,
		ProcessedAt: now,
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM transcripts WHERE title = $1", "Episode One")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTranscriptStore_Upsert_ReplacesSameTitle() {
	store := NewTranscriptStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Upsert(s.ctx, &domain.TranscriptRecord{
		Title:       "Episode One",
		Transcript:  "first pass",
		ProcessedAt: now,
	})
	s.NoError(err)

	err = store.Upsert(s.ctx, &domain.TranscriptRecord{
		Title:       "Episode One",
		Transcript:  "second pass",
		ProcessedAt: now.Add(time.Minute),
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM transcripts")
	s.NoError(err)
	s.Equal(1, count)

	var transcript string
	err = s.db.GetContext(s.ctx, &transcript, "SELECT transcript FROM transcripts WHERE title = $1", "Episode One")
	s.NoError(err)
	s.Equal("second pass", transcript)
}

func (s *PostgresIntegrationSuite) TestTranscriptStore_DeleteAll() {
	store := NewTranscriptStore(s.db)
	now := time.Now().UTC()

	for _, title := range []string{"A", "B", "C"} {
		err := store.Upsert(s.ctx, &domain.TranscriptRecord{
			Title:       title,
			Transcript:  "text",
			ProcessedAt: now,
		})
		s.NoError(err)
	}

	s.NoError(store.DeleteAll(s.ctx))

	var count int
	err := s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM transcripts")
	s.NoError(err)
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestTranscriptStore_FetchAll_OrdersByProcessedAt() {
	store := NewTranscriptStore(s.db)
	base := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Upsert(s.ctx, &domain.TranscriptRecord{
		Title: "Second", Transcript: "b", ProcessedAt: base.Add(time.Minute),
	})
	s.NoError(err)
	err = store.Upsert(s.ctx, &domain.TranscriptRecord{
		Title: "First", Transcript: "a", ProcessedAt: base,
	})
	s.NoError(err)

	records, err := store.FetchAll(s.ctx)
	s.NoError(err)
	s.Require().Len(records, 2)
	s.Equal("First", records[0].Title)
	s.Equal("Second", records[1].Title)
}

func (s *PostgresIntegrationSuite) TestJobStore_Lifecycle() {
	store := NewJobStore(s.db)

	job := &domain.Job{
		ID:             "job-1",
		Status:         domain.JobQueued,
		RSSURL:         "https://example.com/feed.xml",
		NumEpisodes:    2,
		SampleDuration: 60,
	}
	s.NoError(store.Create(s.ctx, job))

	got, err := store.Get(s.ctx, "job-1")
	s.NoError(err)
	s.Equal(domain.JobQueued, got.Status)
	s.Equal("https://example.com/feed.xml", got.RSSURL)

	s.NoError(store.UpdateStatus(s.ctx, "job-1", domain.JobProcessing, nil, nil))

	output := `[{"title":"Ep1"}]`
	s.NoError(store.UpdateStatus(s.ctx, "job-1", domain.JobCompleted, &output, nil))

	got, err = store.Get(s.ctx, "job-1")
	s.NoError(err)
	s.Equal(domain.JobCompleted, got.Status)
	s.Require().NotNil(got.OutputData)
	s.Equal(output, *got.OutputData)
	s.Nil(got.ErrorMessage)
}

func (s *PostgresIntegrationSuite) TestJobStore_TerminalStatusIsImmutable() {
	store := NewJobStore(s.db)

	job := &domain.Job{
		ID:             "job-2",
		Status:         domain.JobQueued,
		RSSURL:         "https://example.com/feed.xml",
		NumEpisodes:    1,
		SampleDuration: 60,
	}
	s.NoError(store.Create(s.ctx, job))

	errMsg := "transcription failed"
	s.NoError(store.UpdateStatus(s.ctx, "job-2", domain.JobFailed, nil, &errMsg))

	err := store.UpdateStatus(s.ctx, "job-2", domain.JobCompleted, nil, nil)
	s.ErrorIs(err, ErrJobNotFound)

	got, err := store.Get(s.ctx, "job-2")
	s.NoError(err)
	s.Equal(domain.JobFailed, got.Status)
	s.Require().NotNil(got.ErrorMessage)
	s.Equal("transcription failed", *got.ErrorMessage)
}

func (s *PostgresIntegrationSuite) TestJobStore_UpdateUnknownJob() {
	store := NewJobStore(s.db)

	err := store.UpdateStatus(s.ctx, "missing", domain.JobProcessing, nil, nil)
	s.ErrorIs(err, ErrJobNotFound)
}

func (s *PostgresIntegrationSuite) TestJobStore_GetUnknownJob() {
	store := NewJobStore(s.db)

	_, err := store.Get(s.ctx, "missing")
	s.ErrorIs(err, ErrJobNotFound)
}
