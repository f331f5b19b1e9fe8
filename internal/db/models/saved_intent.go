package models

import "time"

// DefaultSavedMode is the variant picked when the caller does not name one.
const DefaultSavedMode = "default"

// SavedIntent stores per-user parameter bindings for a provider intent.
// Multiple variants may exist for the same intent, keyed by SavedMode
// (e.g. "default", "fav").
type SavedIntent struct {
	ID          string `gorm:"primaryKey"` // UUID
	UserID      string `gorm:"uniqueIndex:idx_saved_intent"`
	Provider    string `gorm:"uniqueIndex:idx_saved_intent"`
	Method      string `gorm:"uniqueIndex:idx_saved_intent"`
	Intent      string `gorm:"uniqueIndex:idx_saved_intent"`
	SavedMode   string `gorm:"uniqueIndex:idx_saved_intent;default:default"`
	Body        string // JSON object
	QueryParams string // JSON object
	PathParams  string // JSON object
	Headers     string // JSON object
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
