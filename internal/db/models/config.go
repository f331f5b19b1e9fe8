package models

import "time"

// Config stores gateway configuration like the generated API key
type Config struct {
	Key       string `gorm:"primaryKey"` // Config key name
	Value     string // Config value
	CreatedAt time.Time
	UpdatedAt time.Time
}
