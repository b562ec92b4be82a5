package models

import (
	"strings"
	"time"
)

type Sheet struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:255;not null;index" json:"name" binding:"required"`
	RowCount    int       `gorm:"default:100" json:"row_count"`
	ColumnCount int       `gorm:"default:26" json:"column_count"`
	Settings    string    `gorm:"type:text" json:"settings"`
	ReportDate  *string   `gorm:"size:10" json:"report_date"`
	IsPublic    bool      `gorm:"default:false" json:"is_public"`
	CreatedBy   int       `gorm:"index;not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSheet struct {
	Name     string `json:"name" binding:"required"`
	IsPublic bool   `json:"is_public"`
}

// UserSheet grants a user explicit access to a sheet they do not own.
type UserSheet struct {
	ID         int       `gorm:"primary_key" json:"id"`
	UserId     int       `gorm:"index:idx_user_sheet,unique;not null" json:"user_id"`
	SheetId    int       `gorm:"index:idx_user_sheet,unique;not null" json:"sheet_id"`
	Permission string    `gorm:"size:10;not null" json:"permission"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsJournal reports whether the sheet is a check-in journal by naming convention.
func (s *Sheet) IsJournal() bool {
	return strings.HasPrefix(s.Name, JournalNamePrefix)
}

// IsReport reports whether the sheet is a daily report by naming convention.
func (s *Sheet) IsReport() bool {
	return strings.Contains(s.Name, ReportNameMarker)
}

// Address derives the property address from a journal sheet's name. Sheets
// without the journal prefix fall back to the full name.
func (s *Sheet) Address() string {
	if strings.HasPrefix(s.Name, JournalNamePrefix) {
		return strings.TrimSpace(strings.TrimPrefix(s.Name, JournalNamePrefix))
	}
	return strings.TrimSpace(s.Name)
}
