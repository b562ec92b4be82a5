package models

import "time"

// WebhookMapping routes an inbound booking webhook to the journal sheet it
// feeds. ApartmentTitles holds a JSON array of provider-side apartment
// names that map to the sheet.
type WebhookMapping struct {
	ID              int       `gorm:"primary_key" json:"id"`
	SheetId         int       `gorm:"uniqueIndex;not null" json:"sheet_id"`
	ApartmentTitles string    `gorm:"type:text" json:"apartment_titles"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type SystemSetting struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Key       string    `gorm:"size:100;uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	SettingWebhookEnabled = "webhook_enabled"
	SettingWebhookSecret  = "webhook_secret"
)
