package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/services/dto"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper - то, что умеет закрывать зависшие pending-платежи
type Sweeper interface {
	Sweep(ctx context.Context, db *gorm.DB, now time.Time) (*dto.SweepResult, error)
}

// ExpirySweeper по расписанию переводит старые pending-платежи в expired.
type ExpirySweeper struct {
	db       *gorm.DB
	payments Sweeper
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewExpirySweeper(db *gorm.DB, payments Sweeper, schedule string) *ExpirySweeper {
	if schedule == "" {
		schedule = "0 * * * * *"
	}
	return &ExpirySweeper{db: db, payments: payments, schedule: schedule}
}

// Start регистрирует задачу в cron (расписание с секундами). Проход, который
// еще не закончился, следующий тик пропускает.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			logger.WorkerLog("expiry_sweeper", "sweep", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.schedule, err)
	}

	w.mu.Lock()
	w.cron = c
	w.mu.Unlock()

	c.Start()
	logger.Info("Expiry sweeper started", "schedule", w.schedule)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop ждет окончания текущего прохода.
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	logger.Info("Expiry sweeper stopped")
}

// RunOnce - один проход; им же пользуется ручной запуск из админки.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (*dto.SweepResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return w.payments.Sweep(ctx, w.db, time.Now().UTC())
}
