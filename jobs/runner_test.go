package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"ragbackend/config"
	"ragbackend/eventbus"
	"ragbackend/metadata"
	"ragbackend/ragerrors"
)

func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *metadata.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := metadata.OpenDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, metadata.AutoMigrate(db))
	store := metadata.New(db)

	mr := miniredis.RunT(t)
	bus := eventbus.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return New(store, bus, cfg, 1), store
}

func testConfig() *config.Config {
	return &config.Config{MaxAttempts: 3, BackoffBaseMS: 10, BackoffMaxMS: 100}
}

func TestRunner_SuccessfulStageFinalizesAndEnqueuesNext(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, testConfig())

	doc, job, err := store.CreateDocument(ctx, "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)
	require.Equal(t, metadata.JobParse, job.Kind)

	var ran bool
	runner.Register(metadata.JobParse, func(ctx context.Context, documentID uint64, report func(progress int)) error {
		ran = true
		report(50)
		return nil
	})

	claimed, err := store.ClaimJob(ctx, metadata.JobParse)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	runner.run(ctx, claimed)

	require.True(t, ran)

	jobs, err := store.JobsForDocument(ctx, doc.ID)
	require.NoError(t, err)

	var sawParseDone, sawChunkQueued bool
	for _, j := range jobs {
		if j.Kind == metadata.JobParse && j.Status == metadata.JobDone {
			sawParseDone = true
		}
		if j.Kind == metadata.JobChunk {
			sawChunkQueued = true
		}
	}
	require.True(t, sawParseDone)
	require.True(t, sawChunkQueued)
}

func TestRunner_RetryableErrorRequeues(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, testConfig())

	_, job, err := store.CreateDocument(ctx, "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)

	runner.Register(metadata.JobParse, func(ctx context.Context, documentID uint64, report func(progress int)) error {
		return ragerrors.New(ragerrors.StorageUnavailable, "object store unreachable")
	})

	claimed, err := store.ClaimJob(ctx, metadata.JobParse)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	runner.run(ctx, claimed)

	updated, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.JobQueued, updated.Status)
	require.Equal(t, 1, updated.Attempts)
	require.NotNil(t, updated.NextAttemptAt)
	require.True(t, updated.NextAttemptAt.After(time.Now()), "backoff must push next_attempt_at into the future")

	reclaimed, err := store.ClaimJob(ctx, metadata.JobParse)
	require.NoError(t, err)
	require.Nil(t, reclaimed, "a job still inside its backoff window must not be claimable")
}

func TestRunner_NonRetryableErrorFailsTerminal(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, testConfig())

	_, job, err := store.CreateDocument(ctx, "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)

	runner.Register(metadata.JobParse, func(ctx context.Context, documentID uint64, report func(progress int)) error {
		return ragerrors.New(ragerrors.ParseFailed, "unsupported mime type")
	})

	claimed, err := store.ClaimJob(ctx, metadata.JobParse)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	runner.run(ctx, claimed)

	updated, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.JobFailed, updated.Status)
}

func TestRunner_EmbedStageDoesNotEnqueueFurther(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, testConfig())

	doc, _, err := store.CreateDocument(ctx, "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)
	embedJob, err := store.EnqueueJob(ctx, doc.ID, metadata.JobEmbed)
	require.NoError(t, err)

	runner.Register(metadata.JobEmbed, func(ctx context.Context, documentID uint64, report func(progress int)) error {
		return nil
	})

	claimed, err := store.ClaimJob(ctx, metadata.JobEmbed)
	require.NoError(t, err)
	require.Equal(t, embedJob.ID, claimed.ID)

	runner.run(ctx, claimed)

	jobs, err := store.JobsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	for _, j := range jobs {
		require.NotEqual(t, metadata.JobKind("post-embed"), j.Kind)
	}
}
