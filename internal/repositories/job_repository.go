package repositories

import (
	"errors"
	"time"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

type JobRepository interface {
	// Enqueue - ON CONFLICT (kind, key) DO NOTHING. false = такая задача уже есть.
	Enqueue(db *gorm.DB, job *models.Job) (bool, error)
	FindJob(db *gorm.DB, kind, key string) (*models.Job, error)

	// Worker operations
	ClaimNext(db *gorm.DB, kind string, now, staleBefore time.Time) (*models.Job, error)
	Complete(db *gorm.DB, id string) error
	Fail(db *gorm.DB, job *models.Job, lastError string, retryAt time.Time) (models.JobStatus, error)
	CountByStatus(db *gorm.DB, kind string, status models.JobStatus) (int64, error)
}

type JobRepositoryImpl struct{}

func NewJobRepository() JobRepository {
	return &JobRepositoryImpl{}
}

func (r *JobRepositoryImpl) Enqueue(db *gorm.DB, job *models.Job) (bool, error) {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
		DoNothing: true,
	}).Create(job)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *JobRepositoryImpl) FindJob(db *gorm.DB, kind, key string) (*models.Job, error) {
	var job models.Job
	if err := db.Take(&job, "kind = ? AND key = ?", kind, key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// claimable - задача в очереди и ее время пришло, либо "running" с протухшей
// блокировкой (воркер упал посреди выполнения).
func claimable(db *gorm.DB, now, staleBefore time.Time) *gorm.DB {
	return db.Where("((status = ? AND run_at <= ?) OR (status = ? AND locked_at < ?))",
		models.JobStatusQueued, now, models.JobStatusRunning, staleBefore)
}

// ClaimNext забирает одну задачу условным UPDATE. Если кандидата перехватил
// другой воркер, пробуем следующего. nil, nil = работы нет.
func (r *JobRepositoryImpl) ClaimNext(db *gorm.DB, kind string, now, staleBefore time.Time) (*models.Job, error) {
	var candidates []string
	err := claimable(db.Model(&models.Job{}).Where("kind = ?", kind), now, staleBefore).
		Order("run_at ASC").
		Limit(5).
		Pluck("id", &candidates).Error
	if err != nil {
		return nil, err
	}

	for _, id := range candidates {
		result := claimable(db.Model(&models.Job{}).Where("id = ?", id), now, staleBefore).
			Updates(map[string]interface{}{
				"status":    models.JobStatusRunning,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		var job models.Job
		if err := db.Take(&job, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &job, nil
	}
	return nil, nil
}

func (r *JobRepositoryImpl) Complete(db *gorm.DB, id string) error {
	return db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":     models.JobStatusDone,
			"locked_at":  nil,
			"last_error": "",
		}).Error
}

// Fail возвращает задачу в очередь на retryAt или хоронит ее, когда попытки
// кончились. Возвращает итоговый статус.
func (r *JobRepositoryImpl) Fail(db *gorm.DB, job *models.Job, lastError string, retryAt time.Time) (models.JobStatus, error) {
	status := models.JobStatusQueued
	if job.Attempts >= job.MaxAttempts {
		status = models.JobStatusDead
	}

	err := db.Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":     status,
			"run_at":     retryAt,
			"locked_at":  nil,
			"last_error": lastError,
		}).Error
	return status, err
}

func (r *JobRepositoryImpl) CountByStatus(db *gorm.DB, kind string, status models.JobStatus) (int64, error) {
	var count int64
	err := db.Model(&models.Job{}).Where("kind = ? AND status = ?", kind, status).Count(&count).Error
	return count, err
}
