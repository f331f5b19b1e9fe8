package db

import (
	"errors"

	"github.com/google/uuid"
	"github.com/unigate/unigate/internal/db/models"
	"gorm.io/gorm"
)

// GetSavedIntent loads the most specific saved parameter set for
// (user, provider, method, intent). An explicitly requested mode wins;
// otherwise the "default" variant is used; otherwise nil.
func GetSavedIntent(db *gorm.DB, userID, provider, method, intent, mode string) (*models.SavedIntent, error) {
	if mode != "" {
		return findSavedIntent(db, userID, provider, method, intent, mode)
	}
	return findSavedIntent(db, userID, provider, method, intent, models.DefaultSavedMode)
}

func findSavedIntent(db *gorm.DB, userID, provider, method, intent, mode string) (*models.SavedIntent, error) {
	var si models.SavedIntent
	err := db.Where(
		"user_id = ? AND provider = ? AND method = ? AND intent = ? AND saved_mode = ?",
		userID, provider, method, intent, mode,
	).First(&si).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &si, nil
}

// SaveIntent upserts a saved parameter set. An existing variant with the same
// (user, provider, method, intent, mode) key is replaced in place.
func SaveIntent(db *gorm.DB, si *models.SavedIntent) error {
	if si.SavedMode == "" {
		si.SavedMode = models.DefaultSavedMode
	}
	existing, err := findSavedIntent(db, si.UserID, si.Provider, si.Method, si.Intent, si.SavedMode)
	if err != nil {
		return err
	}
	if existing != nil {
		si.ID = existing.ID
		si.CreatedAt = existing.CreatedAt
	} else if si.ID == "" {
		si.ID = uuid.New().String()
	}
	return db.Save(si).Error
}

// ListSavedIntents returns all saved parameter sets owned by a user.
func ListSavedIntents(db *gorm.DB, userID string) ([]models.SavedIntent, error) {
	var sis []models.SavedIntent
	err := db.Where("user_id = ?", userID).
		Order("provider, intent, saved_mode").Find(&sis).Error
	if err != nil {
		return nil, err
	}
	return sis, nil
}

// DeleteSavedIntent removes one saved variant by ID, scoped to its owner.
func DeleteSavedIntent(db *gorm.DB, userID, id string) error {
	return db.Where("user_id = ? AND id = ?", userID, id).
		Delete(&models.SavedIntent{}).Error
}
