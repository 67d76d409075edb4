package repositories

import (
	"errors"
	"time"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

type NotificationRepository interface {
	CreateNotification(db *gorm.DB, notification *models.Notification) error
	FindNotificationByID(db *gorm.DB, id string) (*models.Notification, error)
	FindUserNotifications(db *gorm.DB, userID string, unreadOnly bool, page, pageSize int) ([]models.Notification, int64, error)
	MarkAsRead(db *gorm.DB, id, userID string, at time.Time) error
	MarkDelivered(db *gorm.DB, id string, at time.Time) (bool, error)
	GetUnreadCount(db *gorm.DB, userID string) (int64, error)
}

type NotificationRepositoryImpl struct{}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

func (r *NotificationRepositoryImpl) CreateNotification(db *gorm.DB, notification *models.Notification) error {
	return db.Create(notification).Error
}

func (r *NotificationRepositoryImpl) FindNotificationByID(db *gorm.DB, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := db.Take(&notification, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepositoryImpl) FindUserNotifications(db *gorm.DB, userID string, unreadOnly bool, page, pageSize int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	query := db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Scopes(paginate(page, pageSize)).Order("created_at DESC").Find(&notifications).Error
	return notifications, total, err
}

// MarkAsRead - чужое уведомление выглядит как несуществующее.
func (r *NotificationRepositoryImpl) MarkAsRead(db *gorm.DB, id, userID string, at time.Time) error {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkDelivered ставит delivered_at один раз. false = уже доставлено.
func (r *NotificationRepositoryImpl) MarkDelivered(db *gorm.DB, id string, at time.Time) (bool, error) {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *NotificationRepositoryImpl) GetUnreadCount(db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
