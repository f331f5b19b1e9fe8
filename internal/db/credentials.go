package db

import (
	"errors"

	"github.com/google/uuid"
	"github.com/unigate/unigate/internal/db/models"
	"gorm.io/gorm"
)

// GetCredential returns the stored credential for (user, provider), or nil
// when none exists. Deactivated credentials are still returned so callers can
// report the stored provider error instead of a bare "not found".
func GetCredential(db *gorm.DB, userID, provider string) (*models.Credential, error) {
	var cred models.Credential
	err := db.Where("user_id = ? AND provider = ?", userID, provider).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// UpsertCredential writes a credential back, creating it on first authorization.
// The (user, provider) unique index guarantees at most one row per pair.
func UpsertCredential(db *gorm.DB, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	return db.Save(cred).Error
}

// DeactivateCredential soft-disables a credential after an unrecoverable auth
// failure. The row is kept; deletion is an external concern.
func DeactivateCredential(db *gorm.DB, userID, provider, reason string) error {
	return db.Model(&models.Credential{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]interface{}{"active": false, "provider_error": reason}).Error
}

// ListCredentials returns all credentials owned by a user.
func ListCredentials(db *gorm.DB, userID string) ([]models.Credential, error) {
	var creds []models.Credential
	if err := db.Where("user_id = ?", userID).Order("provider").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}
