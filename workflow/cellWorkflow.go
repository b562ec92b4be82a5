package workflow

import (
	"context"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
)

// ProcessCellUpdate applies one durable cell write and then runs its
// downstream effects. The write is the unit of success; fan-out and reverse
// sync are best effort and never fail the caller.
func (p *Pipeline) ProcessCellUpdate(ctx context.Context, sheet *models.Sheet, input models.NewCell, userId int, userName string) (*models.Cell, string, error) {

	cell, changeType, err := p.Store.Upsert(ctx, sheet.ID, input, userId, userName)
	if err != nil {
		return nil, "", err
	}

	p.runCellTriggers(ctx, sheet, input, userId, userName)

	return cell, changeType, nil
}

// BatchIngest applies an ordered list of mutations for one sheet. The first
// failing item aborts the remainder; fan-out runs exactly once after the
// whole batch, not per cell.
func (p *Pipeline) BatchIngest(ctx context.Context, sheet *models.Sheet, inputs []models.NewCell, userId int, userName string) ([]*models.Cell, error) {

	applied := make([]*models.Cell, 0, len(inputs))
	for _, input := range inputs {
		cell, _, err := p.Store.Upsert(ctx, sheet.ID, input, userId, userName)
		if err != nil {
			return applied, err
		}
		applied = append(applied, cell)
	}

	if sheet.IsJournal() {
		p.FanOut(ctx, sheet.ID)
	}
	if sheet.IsReport() {
		for _, input := range inputs {
			if input.Column == models.ReportColDayComments && input.Row > 1 && input.Value != nil {
				p.ReverseSync(ctx, sheet, input.Row, *input.Value, userId, userName)
			}
		}
	}

	return applied, nil
}

func (p *Pipeline) runCellTriggers(ctx context.Context, sheet *models.Sheet, input models.NewCell, userId int, userName string) {
	if sheet.IsJournal() {
		p.FanOut(ctx, sheet.ID)
	}
	if sheet.IsReport() && input.Column == models.ReportColDayComments && input.Row > 1 && input.Value != nil {
		p.ReverseSync(ctx, sheet, input.Row, *input.Value, userId, userName)
	}
}

// ReverseSync pushes an edited report day-comment back into the journal it
// came from. Any missing link, address, or guest match aborts silently: the
// report write already succeeded and stays in place.
func (p *Pipeline) ReverseSync(ctx context.Context, report *models.Sheet, row int, newValue string, userId int, userName string) {

	addressCell, err := p.Store.Get(ctx, report.ID, row, models.ReportColAddress)
	if err != nil {
		return
	}
	guestCell, err := p.Store.Get(ctx, report.ID, row, models.ReportColCheckInStart)
	if err != nil {
		return
	}
	address := addressCell.Value
	guest := guestCell.Value
	if address == "" || guest == "" {
		p.Logger.WithField("sheet_id", report.ID).
			Info("reverse sync skipped: report row has no address or guest")
		return
	}

	var links []models.ReportSource
	err = p.DB.WithContext(ctx).
		Where("report_sheet_id = ?", report.ID).
		Find(&links).Error
	if err != nil {
		config.LogError(p.Logger, "cellWorkflow.go", "ReverseSync", "FetchLinks", report.ID, err)
		return
	}

	var journal *models.Sheet
	for _, link := range links {
		var candidate models.Sheet
		if err := p.DB.WithContext(ctx).First(&candidate, link.JournalSheetId).Error; err != nil {
			continue
		}
		if candidate.Address() == address {
			journal = &candidate
			break
		}
	}
	if journal == nil {
		p.Logger.WithField("sheet_id", report.ID).
			Info("reverse sync skipped: no linked journal matches address " + address)
		return
	}

	var guestCells []models.Cell
	err = p.DB.WithContext(ctx).
		Where("sheet_id = ? AND `column` = ? AND value = ?", journal.ID, models.JournalColGuest, guest).
		Find(&guestCells).Error
	if err != nil {
		config.LogError(p.Logger, "cellWorkflow.go", "ReverseSync", "FetchGuestRows", journal.ID, err)
		return
	}
	if len(guestCells) == 0 {
		p.Logger.WithField("sheet_id", journal.ID).
			Info("reverse sync skipped: no journal row for guest " + guest)
		return
	}

	for _, guestRow := range guestCells {
		input := models.NewCell{
			Row:    guestRow.Row,
			Column: models.JournalColDayComment,
			Value:  &newValue,
		}

		if guestRow.BookingId != "" {
			target, err := p.Store.Get(ctx, journal.ID, guestRow.Row, models.JournalColDayComment)
			if err == nil && target.BookingId == "" {
				bookingId := guestRow.BookingId
				input.BookingId = &bookingId
			}
		}

		if _, _, err := p.Store.Upsert(ctx, journal.ID, input, userId, userName); err != nil {
			config.LogError(p.Logger, "cellWorkflow.go", "ReverseSync", "UpsertDayComment", journal.ID, err)
		}
	}
}
