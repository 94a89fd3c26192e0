//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestArchiveRoundTrip runs against the database named by DATABASE_URL.
func TestArchiveRoundTrip(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, testLogger()))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	archive := NewJobArchive(tx, 1, testLogger())

	job := finishedJob(domain.StatusCompleted)
	require.NoError(t, archive.Save(ctx, job))

	got, err := archive.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, job.Result.Text, got.Result.Text)
	assert.Nil(t, got.Error)
	assert.True(t, job.CompletedAt.Equal(*got.CompletedAt))

	// a second save of the same id overwrites
	failed := job
	failed.Status = domain.StatusError
	failed.Fail(domain.ErrorKindTimeout, "deadline", true, *job.CompletedAt)
	require.NoError(t, archive.Save(ctx, failed))

	got, err = archive.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorKindTimeout, got.Error.Kind)

	_, err = archive.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
