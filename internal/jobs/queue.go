package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Виды задач
const (
	KindCertificateGenerate = "certificate.generate"
	KindNotificationDeliver = "notification.deliver"
)

// Handler выполняет задачу. Должен быть идемпотентным: доставка at-least-once.
type Handler func(ctx context.Context, job *models.Job) error

// Queue ставит задачи в таблицу jobs в транзакции вызывающего.
type Queue struct {
	repo        repositories.JobRepository
	maxAttempts int
}

func NewQueue(repo repositories.JobRepository, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{repo: repo, maxAttempts: maxAttempts}
}

// Enqueue - повторная постановка той же (kind, key) ничего не делает.
func (q *Queue) Enqueue(tx *gorm.DB, kind, key string, payload interface{}) (bool, error) {
	job := &models.Job{
		Kind:        kind,
		Key:         key,
		Status:      models.JobStatusQueued,
		MaxAttempts: q.maxAttempts,
		RunAt:       time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		job.Payload = datatypes.JSON(raw)
	}
	return q.repo.Enqueue(tx, job)
}

// DecodePayload разбирает payload задачи в dst.
func DecodePayload(job *models.Job, dst interface{}) error {
	if len(job.Payload) == 0 {
		return fmt.Errorf("job %s/%s has empty payload", job.Kind, job.Key)
	}
	return json.Unmarshal(job.Payload, dst)
}

// Registry - обработчики по видам задач.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Registry) Handler(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds - зарегистрированные виды в стабильном порядке.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
