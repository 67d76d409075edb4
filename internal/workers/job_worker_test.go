package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	logger.Init("test")
}

const testKind = "test.job"

func enqueue(t *testing.T, db *gorm.DB, queue *jobs.Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		created, err := queue.Enqueue(db, testKind, fmt.Sprintf("key-%d", i), map[string]int{"n": i})
		require.NoError(t, err)
		require.True(t, created)
	}
}

func newWorker(db *gorm.DB, handler jobs.Handler, cfg JobWorkerConfig) *JobWorker {
	registry := jobs.NewRegistry()
	registry.Register(testKind, handler)
	return NewJobWorker(db, repositories.NewJobRepository(), registry, cfg)
}

func TestJobWorker_Success(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewJobRepository()
	queue := jobs.NewQueue(repo, 3)
	enqueue(t, db, queue, 3)

	// Повторная постановка той же задачи - no-op
	created, err := queue.Enqueue(db, testKind, "key-0", nil)
	require.NoError(t, err)
	assert.False(t, created)

	var calls int32
	w := newWorker(db, func(ctx context.Context, job *models.Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, JobWorkerConfig{})

	assert.Equal(t, 3, w.RunOnce(context.Background()))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	done, err := repo.CountByStatus(db, testKind, models.JobStatusDone)
	require.NoError(t, err)
	assert.EqualValues(t, 3, done)

	// Больше работы нет
	assert.Zero(t, w.RunOnce(context.Background()))
}

func TestJobWorker_RetryThenDead(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewJobRepository()
	enqueue(t, db, jobs.NewQueue(repo, 2), 1)

	w := newWorker(db, func(ctx context.Context, job *models.Job) error {
		return errors.New("smtp unavailable")
	}, JobWorkerConfig{BaseBackoff: time.Hour})

	// 1. Первая попытка: задача вернулась в очередь с отсрочкой
	assert.Zero(t, w.RunOnce(context.Background()))
	job, err := repo.FindJob(db, testKind, "key-0")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "smtp unavailable", job.LastError)
	assert.True(t, job.RunAt.After(time.Now().Add(30*time.Minute)))

	// До run_at задача не берется
	assert.Zero(t, w.RunOnce(context.Background()))
	job, err = repo.FindJob(db, testKind, "key-0")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)

	// 2. Время пришло, последняя попытка
	require.NoError(t, db.Model(&models.Job{}).Where("id = ?", job.ID).
		Update("run_at", time.Now().UTC().Add(-time.Second)).Error)
	assert.Zero(t, w.RunOnce(context.Background()))

	job, err = repo.FindJob(db, testKind, "key-0")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestJobWorker_RateLimit(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewJobRepository()
	enqueue(t, db, jobs.NewQueue(repo, 3), 5)

	w := newWorker(db, func(ctx context.Context, job *models.Job) error { return nil },
		JobWorkerConfig{RatePerMinute: map[string]int{testKind: 2}})

	assert.Equal(t, 2, w.RunOnce(context.Background()))

	queued, err := repo.CountByStatus(db, testKind, models.JobStatusQueued)
	require.NoError(t, err)
	assert.EqualValues(t, 3, queued)
}

func TestJobWorker_ReclaimsStaleRunning(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewJobRepository()
	enqueue(t, db, jobs.NewQueue(repo, 3), 1)

	// Воркер "упал" час назад посреди выполнения
	require.NoError(t, db.Model(&models.Job{}).Where("kind = ?", testKind).Updates(map[string]interface{}{
		"status":    models.JobStatusRunning,
		"locked_at": time.Now().UTC().Add(-time.Hour),
		"attempts":  1,
	}).Error)

	w := newWorker(db, func(ctx context.Context, job *models.Job) error { return nil },
		JobWorkerConfig{VisibilityTimeout: time.Minute})
	assert.Equal(t, 1, w.RunOnce(context.Background()))

	job, err := repo.FindJob(db, testKind, "key-0")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestJobWorker_StartStops(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewJobRepository()
	enqueue(t, db, jobs.NewQueue(repo, 3), 2)

	var calls int32
	w := newWorker(db, func(ctx context.Context, job *models.Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, JobWorkerConfig{PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 3*time.Second, 20*time.Millisecond)
	cancel()
}

func TestBackoff(t *testing.T) {
	base, max := 10*time.Second, 5*time.Minute
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{6, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, base, max), "attempt %d", tt.attempt)
	}
}
