package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"learnhub_backend/internal/email"
	"learnhub_backend/internal/events"
	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pusher - доставка в реальном времени (ws.WebSocketManager).
type Pusher interface {
	SendToUser(userID string, message any) bool
}

type NotificationService interface {
	// Dispatcher: подписчик шины, пишет outbox и ставит доставку в очередь
	Dispatch(ctx context.Context, tx *gorm.DB, evt events.Event) error
	DeliveryHandler(db *gorm.DB) jobs.Handler
	Deliver(ctx context.Context, db *gorm.DB, notificationID string) error

	// Notification API
	GetUserNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, page, pageSize int) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, db *gorm.DB, userID, notificationID string) error
}

type deliveryPayload struct {
	NotificationID string `json:"notification_id"`
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	queue            *jobs.Queue
	mailer           email.Provider
	pusher           Pusher
	frontendURL      string
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	queue *jobs.Queue,
	mailer email.Provider,
	pusher Pusher,
	frontendURL string,
) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		queue:            queue,
		mailer:           mailer,
		pusher:           pusher,
		frontendURL:      frontendURL,
	}
}

// notificationContent - заголовок, текст и ссылка для события
func (s *notificationService) notificationContent(evt events.Event) (title, message, link string) {
	switch evt.Name {
	case events.PaymentCompleted:
		amount, _ := evt.Data["amount"].(string)
		return "Payment received",
			fmt.Sprintf("Your payment of %s has been completed.", amount),
			s.frontendURL + "/payments/" + evt.EntityID
	case events.EnrollmentCreated:
		return "Enrollment confirmed",
			"You now have access to your new course.",
			s.frontendURL + "/enrollments/" + evt.EntityID
	case events.EnrollmentCompleted:
		return "Course completed",
			"Congratulations! Your certificate is being prepared.",
			s.frontendURL + "/enrollments/" + evt.EntityID
	case events.ReviewReplyCreated:
		return "New reply to your review",
			"Someone replied to your course review.",
			s.frontendURL + "/reviews/" + evt.EntityID
	default:
		return evt.Name, "", ""
	}
}

// ---------------- Dispatcher ----------------

func (s *notificationService) Dispatch(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	if evt.UserID == "" {
		return nil
	}

	title, message, link := s.notificationContent(evt)
	data := map[string]interface{}{}
	for k, v := range evt.Data {
		data[k] = v
	}
	if link != "" {
		data["link"] = link
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:   evt.UserID,
		Type:     evt.Name,
		EntityID: evt.EntityID,
		Title:    title,
		Message:  message,
		Data:     datatypes.JSON(raw),
	}
	if err := s.notificationRepo.CreateNotification(tx, notification); err != nil {
		return err
	}

	_, err = s.queue.Enqueue(tx, jobs.KindNotificationDeliver, notification.ID, deliveryPayload{NotificationID: notification.ID})
	return err
}

// ---------------- Delivery ----------------

func (s *notificationService) DeliveryHandler(db *gorm.DB) jobs.Handler {
	return func(ctx context.Context, job *models.Job) error {
		var payload deliveryPayload
		if err := jobs.DecodePayload(job, &payload); err != nil {
			return err
		}
		return s.Deliver(ctx, db, payload.NotificationID)
	}
}

// Deliver - письмо и push. После delivered_at повтор ничего не делает.
func (s *notificationService) Deliver(ctx context.Context, db *gorm.DB, notificationID string) error {
	notification, err := s.notificationRepo.FindNotificationByID(db, notificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			logger.CtxWarn(ctx, "Notification vanished before delivery", "notification_id", notificationID)
			return nil
		}
		return err
	}
	if notification.DeliveredAt != nil {
		return nil
	}

	data := decodeNotificationData(notification.Data)

	if s.mailer != nil {
		user, err := s.userRepo.FindUserByID(db, notification.UserID)
		if err != nil {
			return err
		}
		link, _ := data["link"].(string)
		err = s.mailer.SendTemplate([]string{user.Email}, notification.Title, email.NotificationTemplate, email.TemplateData{
			"Title":   notification.Title,
			"Message": notification.Message,
			"Link":    link,
		})
		if err != nil {
			return fmt.Errorf("send notification email: %w", err)
		}
	}

	if s.pusher != nil {
		pushed := s.pusher.SendToUser(notification.UserID, dto.PushMessage{
			Type:         "notification",
			Notification: dto.NewNotificationResponse(notification, data),
		})
		logger.CtxDebug(ctx, "Notification push", "notification_id", notification.ID, "delivered", pushed)
	}

	if _, err := s.notificationRepo.MarkDelivered(db, notification.ID, nowUTC()); err != nil {
		return err
	}
	return nil
}

func decodeNotificationData(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

// ---------------- Notification API ----------------

func (s *notificationService) GetUserNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, page, pageSize int) (*dto.NotificationListResponse, error) {
	page, pageSize = dto.NormalizePage(page, pageSize)

	notifications, total, err := s.notificationRepo.FindUserNotifications(db, userID, unreadOnly, page, pageSize)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	unread, err := s.notificationRepo.GetUnreadCount(db, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	items := make([]*dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		items = append(items, dto.NewNotificationResponse(&notifications[i], decodeNotificationData(notifications[i].Data)))
	}

	return &dto.NotificationListResponse{
		Notifications: items,
		Total:         total,
		Unread:        unread,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, db *gorm.DB, userID, notificationID string) error {
	if err := s.notificationRepo.MarkAsRead(db, notificationID, userID, nowUTC()); err != nil {
		return handleRepoError(err)
	}
	return nil
}
