package models

import "time"

// SystemSetting is a key/value configuration row owned by the admin console.
type SystemSetting struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	Category  string    `gorm:"index" json:"category"`
	UpdatedAt time.Time `json:"updatedAt"`
}
