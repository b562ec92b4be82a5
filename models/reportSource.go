package models

import "time"

// ReportSource links a report sheet to one of the journal sheets it
// aggregates. Forward sync walks these links, reverse sync resolves the
// journal for an edited report row through them.
type ReportSource struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ReportSheetId  int       `gorm:"index:idx_report_source,unique;not null" json:"report_sheet_id"`
	JournalSheetId int       `gorm:"index:idx_report_source,unique;not null" json:"journal_sheet_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewReportSource struct {
	JournalSheetId int `json:"journal_sheet_id" binding:"required"`
}
