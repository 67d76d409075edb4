package workers

import (
	"context"
	"time"

	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type JobWorkerConfig struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration // после этого running-задача считается брошенной
	BatchSize         int           // максимум задач одного вида за тик
	RatePerMinute     map[string]int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
}

// JobWorker разбирает таблицу jobs. Доставка at-least-once.
type JobWorker struct {
	db       *gorm.DB
	repo     repositories.JobRepository
	registry *jobs.Registry
	cfg      JobWorkerConfig
	limiters map[string]*rate.Limiter
}

func NewJobWorker(db *gorm.DB, repo repositories.JobRepository, registry *jobs.Registry, cfg JobWorkerConfig) *JobWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}

	limiters := make(map[string]*rate.Limiter)
	for kind, perMinute := range cfg.RatePerMinute {
		if perMinute <= 0 {
			continue
		}
		limiters[kind] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}

	return &JobWorker{
		db:       db,
		repo:     repo,
		registry: registry,
		cfg:      cfg,
		limiters: limiters,
	}
}

// Start запускает цикл опроса до отмены ctx
func (w *JobWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *JobWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("Job worker started", "poll_interval", w.cfg.PollInterval.String(), "kinds", w.registry.Kinds())
	for {
		select {
		case <-ctx.Done():
			logger.Info("Job worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce - один проход по всем видам задач. Возвращает число выполненных.
func (w *JobWorker) RunOnce(ctx context.Context) int {
	done := 0
	for _, kind := range w.registry.Kinds() {
		handler, ok := w.registry.Handler(kind)
		if !ok {
			continue
		}
		done += w.drain(ctx, kind, handler)
	}
	return done
}

func (w *JobWorker) drain(ctx context.Context, kind string, handler jobs.Handler) int {
	limiter := w.limiters[kind]
	done := 0

	for i := 0; i < w.cfg.BatchSize; i++ {
		if ctx.Err() != nil {
			return done
		}

		// Токен берется до захвата задачи и возвращается, если работы нет
		var reservation *rate.Reservation
		if limiter != nil {
			reservation = limiter.Reserve()
			if !reservation.OK() || reservation.Delay() > 0 {
				reservation.Cancel()
				return done
			}
		}

		now := time.Now().UTC()
		job, err := w.repo.ClaimNext(w.db, kind, now, now.Add(-w.cfg.VisibilityTimeout))
		if err != nil {
			logger.WorkerLog("job_worker", "claim", err, "kind", kind)
			if reservation != nil {
				reservation.Cancel()
			}
			return done
		}
		if job == nil {
			if reservation != nil {
				reservation.Cancel()
			}
			return done
		}

		if w.process(ctx, handler, job) {
			done++
		}
	}
	return done
}

func (w *JobWorker) process(ctx context.Context, handler jobs.Handler, job *models.Job) bool {
	err := handler(ctx, job)
	if err == nil {
		if err := w.repo.Complete(w.db, job.ID); err != nil {
			logger.WorkerLog("job_worker", "complete", err, "job_id", job.ID, "kind", job.Kind)
		}
		return true
	}

	retryAt := time.Now().UTC().Add(Backoff(job.Attempts, w.cfg.BaseBackoff, w.cfg.MaxBackoff))
	status, ferr := w.repo.Fail(w.db, job, err.Error(), retryAt)
	if ferr != nil {
		logger.WorkerLog("job_worker", "fail", ferr, "job_id", job.ID, "kind", job.Kind)
		return false
	}

	if status == models.JobStatusDead {
		logger.Alert(ctx, "Job exhausted its attempts",
			"job_id", job.ID,
			"kind", job.Kind,
			"key", job.Key,
			"attempts", job.Attempts,
			"error", err.Error(),
		)
		return false
	}
	logger.WorkerLog("job_worker", job.Kind, err, "job_id", job.ID, "attempt", job.Attempts, "retry_at", retryAt)
	return false
}

// Backoff - base * 2^(attempt-1), не больше max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
