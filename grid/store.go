package grid

import (
	"context"
	"errors"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store owns cell persistence and the per-cell change ledger for all sheets.
// Mutations are validated here, at the storage boundary, so every caller
// (handlers, sync flows, webhook ingest) passes through the same checks.
type Store struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Validate *validator.Validate
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{DB: db, Logger: logger, Validate: validator.New()}
}

// Get returns the stored cell, or an empty cell carrying the requested
// coordinates when nothing has been written there yet.
func (s *Store) Get(ctx context.Context, sheetId, row, column int) (*models.Cell, error) {
	var cell models.Cell
	err := s.DB.WithContext(ctx).
		Where("sheet_id = ? AND `row` = ? AND `column` = ?", sheetId, row, column).
		First(&cell).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Cell{SheetId: sheetId, Row: row, Column: column}, nil
	}
	if err != nil {
		config.LogError(s.Logger, "store.go", "Get", "FetchCell", sheetId, err)
		return nil, err
	}
	return &cell, nil
}

// GetSheetCells loads every stored cell of a sheet ordered by position.
func (s *Store) GetSheetCells(ctx context.Context, sheetId int) ([]*models.Cell, error) {
	var cells []*models.Cell
	err := s.DB.WithContext(ctx).
		Where("sheet_id = ?", sheetId).
		Order("`row`, `column`").
		Find(&cells).Error
	if err != nil {
		config.LogError(s.Logger, "store.go", "GetSheetCells", "FetchCells", sheetId, err)
		return nil, err
	}
	return cells, nil
}

// Upsert applies one cell mutation. Nil input fields keep the stored value.
// The write always happens, even when the incoming fields equal the stored
// ones, and exactly one ledger entry is recorded per call. A ledger failure
// is logged and swallowed so it never blocks the cell write.
func (s *Store) Upsert(ctx context.Context, sheetId int, input models.NewCell, userId int, userName string) (*models.Cell, string, error) {
	return s.UpsertTx(s.DB.WithContext(ctx), sheetId, input, userId, userName)
}

// UpsertTx is Upsert running on a caller-supplied handle, so sync pipelines
// can fold cell writes into their own transaction.
func (s *Store) UpsertTx(tx *gorm.DB, sheetId int, input models.NewCell, userId int, userName string) (*models.Cell, string, error) {

	if err := s.Validate.Struct(&input); err != nil {
		return nil, "", err
	}

	var prior models.Cell
	exists := true
	err := tx.Where("sheet_id = ? AND `row` = ? AND `column` = ?", sheetId, input.Row, input.Column).
		First(&prior).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		exists = false
		prior = models.Cell{SheetId: sheetId, Row: input.Row, Column: input.Column}
	} else if err != nil {
		config.LogError(s.Logger, "store.go", "UpsertTx", "FetchPrior", sheetId, err)
		return nil, "", err
	}

	changeType := ClassifyChange(&prior, exists, input)

	cell := prior
	if input.Value != nil {
		cell.Value = *input.Value
	}
	if input.Formula != nil {
		cell.Formula = *input.Formula
	}
	if input.Format != nil {
		cell.Format = *input.Format
	}
	if input.IsLocked != nil {
		cell.IsLocked = *input.IsLocked
	}
	if input.MergedWith != nil {
		cell.MergedWith = *input.MergedWith
	}
	if input.BookingId != nil {
		cell.BookingId = *input.BookingId
	}

	if err := tx.Save(&cell).Error; err != nil {
		config.LogError(s.Logger, "store.go", "UpsertTx", "SaveCell", cell, err)
		return nil, "", err
	}

	entry := models.CellHistory{
		CellId:     cell.ID,
		SheetId:    sheetId,
		Row:        input.Row,
		Column:     input.Column,
		OldValue:   prior.Value,
		NewValue:   cell.Value,
		OldFormula: prior.Formula,
		NewFormula: cell.Formula,
		OldFormat:  prior.Format,
		NewFormat:  cell.Format,
		ChangeType: changeType,
		UserId:     userId,
		UserName:   userName,
	}
	// ledger failure is logged inside RecordHistory and never blocks the write
	_ = s.RecordHistory(tx, &entry)

	return &cell, changeType, nil
}

// BulkUpsert applies mutations one by one in input order. The first failing
// item aborts the remainder; already applied items stay applied.
func (s *Store) BulkUpsert(ctx context.Context, sheetId int, inputs []models.NewCell, userId int, userName string) ([]*models.Cell, error) {
	applied := make([]*models.Cell, 0, len(inputs))
	for _, input := range inputs {
		cell, _, err := s.Upsert(ctx, sheetId, input, userId, userName)
		if err != nil {
			return applied, err
		}
		applied = append(applied, cell)
	}
	return applied, nil
}

// ClearRowsFrom deletes every cell of the sheet at or below the given row.
// Row clearing is deliberately narrowed to a threshold: every caller clears
// a suffix of the sheet, and a threshold pushes the filter into SQL where an
// arbitrary row predicate could not go.
func (s *Store) ClearRowsFrom(tx *gorm.DB, sheetId, fromRow int) error {
	err := tx.Where("sheet_id = ? AND `row` >= ?", sheetId, fromRow).
		Delete(&models.Cell{}).Error
	if err != nil {
		config.LogError(s.Logger, "store.go", "ClearRowsFrom", "DeleteRows", sheetId, err)
	}
	return err
}

// ClassifyChange picks the ledger change type for a mutation. Value changes
// take precedence over formula changes, formula over format. A write to a
// position with no stored cell is always a create.
func ClassifyChange(prior *models.Cell, exists bool, input models.NewCell) string {
	if !exists {
		return models.ChangeTypeCreate
	}
	if input.Value != nil && *input.Value != prior.Value {
		return models.ChangeTypeValue
	}
	if input.Formula != nil && *input.Formula != prior.Formula {
		return models.ChangeTypeFormula
	}
	if input.Format != nil && *input.Format != prior.Format {
		return models.ChangeTypeFormat
	}
	return models.ChangeTypeValue
}
