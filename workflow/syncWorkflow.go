package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/grid"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("sheets-backend")

const syncMaxAttempts = 3

// Pipeline runs the journal/report synchronization flows. A report write is
// the unit of user-visible success; everything the pipeline does downstream
// of it is best effort.
type Pipeline struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Store  *grid.Store
	Redis  *config.Redis
}

func NewPipeline(db *gorm.DB, logger *logrus.Logger, store *grid.Store, redis *config.Redis) *Pipeline {
	return &Pipeline{DB: db, Logger: logger, Store: store, Redis: redis}
}

// journalSnapshot is one linked journal with all of its cells, read before
// any report row is computed.
type journalSnapshot struct {
	sheet models.Sheet
	cells []*models.Cell
}

type checkoutBlock struct {
	guestName string
	phone     string
	comment   string
}

type checkinBlock struct {
	guestName    string
	phone        string
	checkoutDate string
	dayCount     string
	totalAmount  string
	prepayment   string
	extraPayment string
	comment      string
	dayComments  string
}

// reportRow is the computed state of one report data row, one per journal
// that has activity on the report date.
type reportRow struct {
	address     string
	houseStatus string
	checkout    *checkoutBlock
	checkin     *checkinBlock
}

// SyncReport recomputes a report from its linked journals for the given date.
// An empty date falls back to the report's stored date; if neither is set the
// call is a no-op. The new report state is computed fully in memory and then
// applied in one transaction, retried on transient failure.
func (p *Pipeline) SyncReport(ctx context.Context, reportSheetId int, date string) error {

	ctx, span := tracer.Start(ctx, "SyncReport")
	defer span.End()

	var report models.Sheet
	if err := p.DB.WithContext(ctx).First(&report, reportSheetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		config.LogError(p.Logger, "syncWorkflow.go", "SyncReport", "FetchReport", reportSheetId, err)
		return err
	}

	if date == "" && report.ReportDate != nil {
		date = *report.ReportDate
	}
	if date == "" {
		return nil
	}

	var links []models.ReportSource
	err := p.DB.WithContext(ctx).
		Where("report_sheet_id = ?", reportSheetId).
		Order("id").
		Find(&links).Error
	if err != nil {
		config.LogError(p.Logger, "syncWorkflow.go", "SyncReport", "FetchLinks", reportSheetId, err)
		return err
	}

	journals := make([]journalSnapshot, 0, len(links))
	for _, link := range links {
		var journal models.Sheet
		if err := p.DB.WithContext(ctx).First(&journal, link.JournalSheetId).Error; err != nil {
			config.LogError(p.Logger, "syncWorkflow.go", "SyncReport", "FetchJournal", link.JournalSheetId, err)
			continue
		}
		cells, err := p.Store.GetSheetCells(ctx, journal.ID)
		if err != nil {
			return err
		}
		journals = append(journals, journalSnapshot{sheet: journal, cells: cells})
	}

	rows := computeReportRows(journals, date)
	newCells := renderReportCells(reportSheetId, rows)

	lock, err := p.Redis.Obtain(ctx, fmt.Sprintf("lock:report-sync:%d", reportSheetId), 30*time.Second)
	if err == redislock.ErrNotObtained {
		p.Logger.WithFields(logrus.Fields{
			"field":    "SyncReport",
			"sheet_id": reportSheetId,
		}).Warn("could not obtain report sync lock; proceeding without it")
	} else if err != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":    "SyncReport",
			"sheet_id": reportSheetId,
		}).Warn("error obtaining report sync lock; proceeding without it: " + err.Error())
	}
	if lock != nil {
		defer func() { _ = lock.Release(ctx) }()
	}

	for attempt := 0; ; attempt++ {
		err = p.applyReportState(ctx, reportSheetId, date, newCells)
		if err == nil {
			return nil
		}
		if attempt >= syncMaxAttempts-1 {
			config.LogError(p.Logger, "syncWorkflow.go", "SyncReport", "ApplyReportState", reportSheetId, err)
			return err
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		p.Logger.WithFields(logrus.Fields{
			"field":    "SyncReport",
			"sheet_id": reportSheetId,
			"attempt":  attempt,
		}).Warn("report apply failed; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}
}

// applyReportState swaps the report's data rows in one transaction: rows 0
// and 1 (date and headers) survive, everything below is replaced. Column
// formatting on otherwise empty cells (section borders and such) is carried
// over onto the fresh rows.
func (p *Pipeline) applyReportState(ctx context.Context, reportSheetId int, date string, newCells []models.Cell) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var formatted []models.Cell
		err := tx.Where("sheet_id = ? AND `row` > 1 AND format <> '' AND value = ''", reportSheetId).
			Find(&formatted).Error
		if err != nil {
			return err
		}

		if err := p.Store.ClearRowsFrom(tx, reportSheetId, 2); err != nil {
			return err
		}

		index := make(map[[2]int]int, len(newCells))
		for i := range newCells {
			index[[2]int{newCells[i].Row, newCells[i].Column}] = i
		}
		for _, cell := range formatted {
			if i, ok := index[[2]int{cell.Row, cell.Column}]; ok {
				newCells[i].Format = cell.Format
				continue
			}
			newCells = append(newCells, models.Cell{
				SheetId: reportSheetId,
				Row:     cell.Row,
				Column:  cell.Column,
				Format:  cell.Format,
			})
		}

		var dateCell models.Cell
		err = tx.Where("sheet_id = ? AND `row` = 0 AND `column` = 1", reportSheetId).
			First(&dateCell).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dateCell = models.Cell{
				SheetId: reportSheetId,
				Row:     0,
				Column:  1,
				Format:  `{"fontWeight":"bold","fontSize":"16px","textAlign":"center"}`,
			}
		} else if err != nil {
			return err
		}
		dateCell.Value = date
		if err := tx.Save(&dateCell).Error; err != nil {
			return err
		}

		if len(newCells) > 0 {
			if err := tx.Create(&newCells).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Sheet{}).Where("id = ?", reportSheetId).
			Update("report_date", date).Error
	})
}

// computeReportRows selects the journal rows whose check-in or check-out
// matches the date and folds them into one report row per journal, in link
// order. Within a journal, multiple matches merge into shared checkout and
// checkin blocks.
func computeReportRows(journals []journalSnapshot, date string) []reportRow {
	var rows []reportRow

	for _, journal := range journals {
		byRow := map[int]map[int]string{}
		var rowOrder []int
		for _, cell := range journal.cells {
			if cell.Row == 0 {
				continue
			}
			if byRow[cell.Row] == nil {
				byRow[cell.Row] = map[int]string{}
				rowOrder = append(rowOrder, cell.Row)
			}
			byRow[cell.Row][cell.Column] = cell.Value
		}

		var out *reportRow
		for _, rowIdx := range rowOrder {
			row := byRow[rowIdx]
			isCheckin := utils.JournalDateToISO(row[models.JournalColCheckInDate]) == date
			isCheckout := utils.JournalDateToISO(row[models.JournalColCheckOutDate]) == date
			if !isCheckin && !isCheckout {
				continue
			}

			if out == nil {
				rows = append(rows, reportRow{address: journal.sheet.Address()})
				out = &rows[len(rows)-1]
			}

			if isCheckout {
				if out.checkout == nil {
					out.checkout = &checkoutBlock{
						guestName: row[models.JournalColGuest],
						phone:     row[models.JournalColPhone],
						comment:   row[models.JournalColPaymentComment],
					}
				} else {
					out.checkout.guestName += ", " + row[models.JournalColGuest]
					out.checkout.phone += ", " + row[models.JournalColPhone]
					out.checkout.comment += "; " + row[models.JournalColPaymentComment]
				}
			}

			if isCheckin {
				if out.checkin == nil {
					out.checkin = &checkinBlock{
						guestName:    row[models.JournalColGuest],
						phone:        row[models.JournalColPhone],
						checkoutDate: row[models.JournalColCheckOutDate],
						dayCount:     row[models.JournalColDayCount],
						totalAmount:  row[models.JournalColTotalAmount],
						prepayment:   row[models.JournalColPrepayment],
						extraPayment: row[models.JournalColExtraCharge],
						comment:      row[models.JournalColPaymentComment],
						dayComments:  row[models.JournalColDayComment],
					}
				} else {
					out.checkin.guestName += ", " + row[models.JournalColGuest]
					out.checkin.phone += ", " + row[models.JournalColPhone]
					out.checkin.comment += "; " + row[models.JournalColPaymentComment]
					if dc := row[models.JournalColDayComment]; dc != "" {
						out.checkin.dayComments += "; " + dc
					}
					out.checkin.totalAmount = sumAmounts(out.checkin.totalAmount, row[models.JournalColTotalAmount])
				}
			}

			switch {
			case out.checkout != nil && out.checkin != nil:
				out.houseStatus = models.HouseStatusBoth
			case out.checkout != nil:
				out.houseStatus = models.HouseStatusCheckOut
			default:
				out.houseStatus = models.HouseStatusCheckIn
			}
		}
	}

	return rows
}

// sumAmounts adds two journal amount cells, tolerating thousand separators.
// A non-numeric addend leaves the current value alone.
func sumAmounts(current, next string) string {
	b, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(next), " ", ""))
	if err != nil {
		return current
	}
	a, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(current), " ", ""))
	if err != nil {
		a = decimal.Decimal{}
	}
	return a.Add(b).String()
}

// renderReportCells lays computed rows out on the fixed report column
// contract, starting at row 2.
func renderReportCells(reportSheetId int, rows []reportRow) []models.Cell {
	var cells []models.Cell
	put := func(row, column int, value string) {
		cells = append(cells, models.Cell{
			SheetId: reportSheetId,
			Row:     row,
			Column:  column,
			Value:   value,
		})
	}

	rowIdx := 2
	for _, r := range rows {
		put(rowIdx, models.ReportColAddress, r.address)
		put(rowIdx, models.ReportColHouseStatus, r.houseStatus)

		if r.checkout != nil {
			put(rowIdx, 2, r.checkout.guestName)
			put(rowIdx, 3, r.checkout.phone)
			put(rowIdx, 4, r.checkout.comment)
			put(rowIdx, 5, "") // checkout time, filled in by hand
		} else {
			for col := models.ReportColCheckOutStart; col <= models.ReportColCheckOutEnd; col++ {
				put(rowIdx, col, "")
			}
		}

		if r.checkin != nil {
			put(rowIdx, 6, r.checkin.guestName)
			put(rowIdx, 7, r.checkin.phone)
			put(rowIdx, 8, "") // checkin time, filled in by hand
			put(rowIdx, 9, r.checkin.checkoutDate)
			put(rowIdx, 10, r.checkin.dayCount)
			put(rowIdx, 11, r.checkin.totalAmount)
			put(rowIdx, 12, r.checkin.prepayment)
			put(rowIdx, 13, r.checkin.extraPayment)
			put(rowIdx, 14, r.checkin.comment)
			put(rowIdx, 15, "")
			put(rowIdx, models.ReportColDayComments, r.checkin.dayComments)
		} else {
			for col := models.ReportColCheckInStart; col <= models.ReportColDayComments; col++ {
				put(rowIdx, col, "")
			}
		}

		rowIdx++
	}
	return cells
}

// FanOut re-runs forward sync for every report linked to the journal, once.
// Sync failures are logged and never surfaced to the triggering write.
func (p *Pipeline) FanOut(ctx context.Context, journalSheetId int) {
	var links []models.ReportSource
	err := p.DB.WithContext(ctx).
		Where("journal_sheet_id = ?", journalSheetId).
		Find(&links).Error
	if err != nil {
		config.LogError(p.Logger, "syncWorkflow.go", "FanOut", "FetchLinks", journalSheetId, err)
		return
	}

	for _, link := range links {
		if err := p.SyncReport(ctx, link.ReportSheetId, ""); err != nil {
			config.LogError(p.Logger, "syncWorkflow.go", "FanOut", "SyncReport", link.ReportSheetId, err)
		}
	}
}
