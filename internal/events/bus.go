package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
)

// Имена доменных событий
const (
	EnrollmentCreated   = "enrollment.created"
	EnrollmentCompleted = "enrollment.completed"
	PaymentCompleted    = "payment.completed"
	ReviewReplyCreated  = "review.reply.created"
)

// Event - доменное событие для получателя UserID.
type Event struct {
	Name       string
	EntityID   string
	UserID     string
	Data       map[string]interface{}
	OccurredAt time.Time
}

// EnrollmentStatusChanged публикуется на каждый переход статуса зачисления.
type EnrollmentStatusChanged struct {
	EnrollmentID string
	StudentID    string
	CourseID     string
	From         models.EnrollmentStatus
	To           models.EnrollmentStatus
	OccurredAt   time.Time
}

type Handler func(ctx context.Context, tx *gorm.DB, evt Event) error
type StatusHandler func(ctx context.Context, tx *gorm.DB, evt EnrollmentStatusChanged) error

// Bus - синхронная шина внутри транзакции. Обработчики получают tx
// публикующего; первая ошибка откатывает всю единицу работы.
type Bus struct {
	mu             sync.RWMutex
	handlers       map[string][]Handler
	anyHandlers    []Handler
	statusHandlers []StatusHandler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe регистрирует обработчик одного события.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll регистрирует обработчик всех именованных событий.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anyHandlers = append(b.anyHandlers, h)
}

func (b *Bus) OnEnrollmentStatusChanged(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusHandlers = append(b.statusHandlers, h)
}

func (b *Bus) Publish(ctx context.Context, tx *gorm.DB, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := append(append([]Handler{}, b.handlers[evt.Name]...), b.anyHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, tx, evt); err != nil {
			return fmt.Errorf("event %s: %w", evt.Name, err)
		}
	}
	return nil
}

func (b *Bus) PublishStatusChanged(ctx context.Context, tx *gorm.DB, evt EnrollmentStatusChanged) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := append([]StatusHandler{}, b.statusHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, tx, evt); err != nil {
			return fmt.Errorf("enrollment status %s -> %s: %w", evt.From, evt.To, err)
		}
	}
	return nil
}
