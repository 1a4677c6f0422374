package models

import (
	"time"
)

// CacheEntry is a shared counter row backing the database rate-limit store.
// Rows whose window has lapsed are swept by the maintenance cleaner.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
