package repositories

import (
	"errors"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCertificateNotFound = errors.New("certificate not found")
)

type CertificateRepository interface {
	CreateCertificate(db *gorm.DB, certificate *models.Certificate) (bool, error)
	FindCertificateByEnrollment(db *gorm.DB, enrollmentID string) (*models.Certificate, error)
	FindCertificateByNumber(db *gorm.DB, number string) (*models.Certificate, error)
	CertificateNumberExists(db *gorm.DB, number string) (bool, error)
}

type CertificateRepositoryImpl struct{}

func NewCertificateRepository() CertificateRepository {
	return &CertificateRepositoryImpl{}
}

// CreateCertificate - один сертификат на зачисление. false = уже выдан.
func (r *CertificateRepositoryImpl) CreateCertificate(db *gorm.DB, certificate *models.Certificate) (bool, error) {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}},
		DoNothing: true,
	}).Create(certificate)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *CertificateRepositoryImpl) FindCertificateByEnrollment(db *gorm.DB, enrollmentID string) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := db.Take(&certificate, "enrollment_id = ?", enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, err
	}
	return &certificate, nil
}

func (r *CertificateRepositoryImpl) FindCertificateByNumber(db *gorm.DB, number string) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := db.Take(&certificate, "certificate_number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, err
	}
	return &certificate, nil
}

func (r *CertificateRepositoryImpl) CertificateNumberExists(db *gorm.DB, number string) (bool, error) {
	var count int64
	err := db.Model(&models.Certificate{}).Where("certificate_number = ?", number).Count(&count).Error
	return count > 0, err
}
