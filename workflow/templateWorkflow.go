package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"gorm.io/gorm"
)

// Reverse sync resolves report sheets by this substring, so a report created
// without it would silently never propagate day-comment edits back.
var ErrReportNameMarker = errors.New("report name must contain " + models.ReportNameMarker)

const templateRowCount = 30

// section borders for the report template: thick left edge where the
// checkout and checkin blocks begin
const sectionBorderFormat = `{"borders":{"top":{"style":"solid","width":1,"color":"#e0e0e0"},"right":{"style":"solid","width":1,"color":"#e0e0e0"},"bottom":{"style":"solid","width":1,"color":"#e0e0e0"},"left":{"style":"solid","width":2,"color":"#000000"}}}`

// CreateReport creates a report sheet linked to the given journals, seeds
// the section borders, and runs an initial sync when a date is supplied.
// The name must carry the report marker substring.
func (p *Pipeline) CreateReport(ctx context.Context, name string, journalSheetIds []int, date string, userId int) (*models.Sheet, error) {

	if !strings.Contains(name, models.ReportNameMarker) {
		return nil, ErrReportNameMarker
	}

	sheet := models.Sheet{
		Name:      name,
		CreatedBy: userId,
	}

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sheet).Error; err != nil {
			return err
		}

		for _, journalId := range journalSheetIds {
			link := models.ReportSource{
				ReportSheetId:  sheet.ID,
				JournalSheetId: journalId,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}

		var seeds []models.Cell
		for row := 0; row < templateRowCount; row++ {
			for _, col := range []int{models.ReportColCheckOutStart, models.ReportColCheckInStart} {
				seeds = append(seeds, models.Cell{
					SheetId: sheet.ID,
					Row:     row,
					Column:  col,
					Format:  sectionBorderFormat,
				})
			}
		}
		return tx.Create(&seeds).Error
	})
	if err != nil {
		config.LogError(p.Logger, "templateWorkflow.go", "CreateReport", "CreateSheet", name, err)
		return nil, err
	}

	if date != "" {
		if err := p.SyncReport(ctx, sheet.ID, date); err != nil {
			config.LogError(p.Logger, "templateWorkflow.go", "CreateReport", "InitialSync", sheet.ID, err)
		}
	}

	return &sheet, nil
}
