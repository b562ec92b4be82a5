package models

import (
	"time"
)

type Cell struct {
	ID         int       `gorm:"primary_key" json:"id"`
	SheetId    int       `gorm:"index:idx_sheet_cell,unique;not null" json:"sheet_id"`
	Row        int       `gorm:"index:idx_sheet_cell,unique;not null" json:"row"`
	Column     int       `gorm:"index:idx_sheet_cell,unique;not null" json:"column"`
	Value      string    `gorm:"type:text" json:"value"`
	Formula    string    `gorm:"type:text" json:"formula"`
	Format     string    `gorm:"type:text" json:"format"`
	IsLocked   bool      `gorm:"default:false" json:"is_locked"`
	MergedWith string    `gorm:"size:20" json:"merged_with"`
	BookingId  string    `gorm:"size:100;index" json:"booking_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewCell carries one cell mutation. Nil fields keep the stored value.
type NewCell struct {
	Row        int     `json:"row" validate:"min=0"`
	Column     int     `json:"column" validate:"min=0"`
	Value      *string `json:"value"`
	Formula    *string `json:"formula"`
	Format     *string `json:"format"`
	IsLocked   *bool   `json:"is_locked"`
	MergedWith *string `json:"merged_with"`
	BookingId  *string `json:"booking_id"`
}

type CellHistory struct {
	ID         int       `gorm:"primary_key" json:"id"`
	CellId     int       `gorm:"index" json:"cell_id"`
	SheetId    int       `gorm:"index:idx_history_cell;not null" json:"sheet_id"`
	Row        int       `gorm:"index:idx_history_cell;not null" json:"row"`
	Column     int       `gorm:"index:idx_history_cell;not null" json:"column"`
	OldValue   string    `gorm:"type:text" json:"old_value"`
	NewValue   string    `gorm:"type:text" json:"new_value"`
	OldFormula string    `gorm:"type:text" json:"old_formula"`
	NewFormula string    `gorm:"type:text" json:"new_formula"`
	OldFormat  string    `gorm:"type:text" json:"old_format"`
	NewFormat  string    `gorm:"type:text" json:"new_format"`
	ChangeType string    `gorm:"size:10;not null" json:"change_type"`
	UserId     int       `gorm:"index" json:"user_id"`
	UserName   string    `gorm:"size:100" json:"user_name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
