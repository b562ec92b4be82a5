package grid

import (
	"context"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"gorm.io/gorm"
)

// RecordHistory appends one ledger entry on the supplied handle. Callers that
// must not fail on ledger errors log and drop the returned error themselves.
func (s *Store) RecordHistory(tx *gorm.DB, entry *models.CellHistory) error {
	if err := tx.Create(entry).Error; err != nil {
		config.LogError(s.Logger, "history.go", "RecordHistory", "CreateEntry", entry, err)
		return err
	}
	return nil
}

// QueryHistory pages through a cell's ledger, newest first, and reports the
// total entry count for the position.
func (s *Store) QueryHistory(ctx context.Context, sheetId, row, column, limit, offset int) ([]*models.CellHistory, int64, error) {

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	base := s.DB.WithContext(ctx).Model(&models.CellHistory{}).
		Where("sheet_id = ? AND `row` = ? AND `column` = ?", sheetId, row, column)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		config.LogError(s.Logger, "history.go", "QueryHistory", "CountEntries", sheetId, err)
		return nil, 0, err
	}

	var entries []*models.CellHistory
	err := base.Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	if err != nil {
		config.LogError(s.Logger, "history.go", "QueryHistory", "FetchEntries", sheetId, err)
		return nil, 0, err
	}
	return entries, total, nil
}
