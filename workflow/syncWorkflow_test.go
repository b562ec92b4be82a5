package workflow_test

import (
	"context"
	"testing"

	"github.com/dmdcottage/sheets_backend/dbtest"
	"github.com/dmdcottage/sheets_backend/grid"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/workflow"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func newPipeline(t *testing.T) (*workflow.Pipeline, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	logger := dbtest.Logger()
	store := grid.NewStore(db, logger)
	return workflow.NewPipeline(db, logger, store, nil), db
}

func mustCreateSheet(t *testing.T, db *gorm.DB, name string) *models.Sheet {
	t.Helper()
	sheet := &models.Sheet{Name: name, CreatedBy: 1}
	if err := db.Create(sheet).Error; err != nil {
		t.Fatalf("create sheet %q: %v", name, err)
	}
	return sheet
}

func mustLink(t *testing.T, db *gorm.DB, reportId, journalId int) {
	t.Helper()
	if err := db.Create(&models.ReportSource{ReportSheetId: reportId, JournalSheetId: journalId}).Error; err != nil {
		t.Fatalf("link report %d to journal %d: %v", reportId, journalId, err)
	}
}

// seedJournalRow writes one booking row on the journal column contract.
func seedJournalRow(t *testing.T, p *workflow.Pipeline, sheetId, row int, checkin, checkout, guest, phone, total, comment string) {
	t.Helper()
	values := map[int]string{
		models.JournalColMonth:          "Март 2024",
		models.JournalColCheckInDate:    checkin,
		models.JournalColDayCount:       "3",
		models.JournalColCheckOutDate:   checkout,
		models.JournalColGuest:          guest,
		models.JournalColPhone:          phone,
		models.JournalColTotalAmount:    total,
		models.JournalColPrepayment:     "1000",
		models.JournalColExtraCharge:    "0",
		models.JournalColPaymentComment: comment,
	}
	for col, val := range values {
		v := val
		if _, _, err := p.Store.Upsert(context.Background(), sheetId, models.NewCell{Row: row, Column: col, Value: &v}, 1, "Test"); err != nil {
			t.Fatalf("seed journal cell (%d,%d): %v", row, col, err)
		}
	}
}

func reportValues(t *testing.T, p *workflow.Pipeline, sheetId int) map[[2]int]string {
	t.Helper()
	cells, err := p.Store.GetSheetCells(context.Background(), sheetId)
	if err != nil {
		t.Fatalf("GetSheetCells: %v", err)
	}
	out := map[[2]int]string{}
	for _, cell := range cells {
		out[[2]int{cell.Row, cell.Column}] = cell.Value
	}
	return out
}

func TestForwardSyncSelectsRowsByDate(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	report := mustCreateSheet(t, db, "Отчет заселения/выселения")
	mustLink(t, db, report.ID, journal.ID)

	seedJournalRow(t, p, journal.ID, 2, "05.03.2024", "08.03.2024", "Иванов И.И.", "+7 900 000-00-01", "15000", "оплачено")

	for date, wantRow := range map[string]bool{
		"2024-03-05": true,
		"2024-03-08": true,
		"2024-03-06": false,
		"2024-03-07": false,
	} {
		if err := p.SyncReport(ctx, report.ID, date); err != nil {
			t.Fatalf("SyncReport(%s): %v", date, err)
		}
		values := reportValues(t, p, report.ID)
		_, hasRow := values[[2]int{2, models.ReportColAddress}]
		if hasRow != wantRow {
			t.Errorf("date %s: row present = %v, want %v", date, hasRow, wantRow)
		}
		if values[[2]int{0, 1}] != date {
			t.Errorf("date %s: date cell = %q", date, values[[2]int{0, 1}])
		}
	}
}

func TestForwardSyncRowContract(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	report := mustCreateSheet(t, db, "Отчет заселения/выселения")
	mustLink(t, db, report.ID, journal.ID)

	// one guest checks out, another checks in, same date
	seedJournalRow(t, p, journal.ID, 2, "02.03.2024", "05.03.2024", "Петров П.П.", "+7 900 000-00-02", "9000", "наличные")
	seedJournalRow(t, p, journal.ID, 3, "05.03.2024", "09.03.2024", "Иванов И.И.", "+7 900 000-00-01", "15000", "предоплата")

	if err := p.SyncReport(ctx, report.ID, "2024-03-05"); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}
	values := reportValues(t, p, report.ID)

	want := map[[2]int]string{
		{2, 0}:  "Cottage 5",
		{2, 1}:  models.HouseStatusBoth,
		{2, 2}:  "Петров П.П.",
		{2, 3}:  "+7 900 000-00-02",
		{2, 4}:  "наличные",
		{2, 6}:  "Иванов И.И.",
		{2, 7}:  "+7 900 000-00-01",
		{2, 9}:  "09.03.2024",
		{2, 10}: "3",
		{2, 11}: "15000",
		{2, 12}: "1000",
		{2, 14}: "предоплата",
	}
	for pos, wantVal := range want {
		if values[pos] != wantVal {
			t.Errorf("cell %v = %q, want %q", pos, values[pos], wantVal)
		}
	}

	var updated models.Sheet
	if err := db.First(&updated, report.ID).Error; err != nil {
		t.Fatalf("reload report: %v", err)
	}
	if updated.ReportDate == nil || *updated.ReportDate != "2024-03-05" {
		t.Fatalf("report date not persisted: %v", updated.ReportDate)
	}
}

func TestForwardSyncIsIdempotent(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Дом 3")
	report := mustCreateSheet(t, db, "Отчет по Дому 3")
	mustLink(t, db, report.ID, journal.ID)

	seedJournalRow(t, p, journal.ID, 2, "10.04.2024", "12.04.2024", "Сидорова А.А.", "+7 900 000-00-03", "7000", "")

	if err := p.SyncReport(ctx, report.ID, "2024-04-10"); err != nil {
		t.Fatalf("first SyncReport: %v", err)
	}
	first := reportValues(t, p, report.ID)

	if err := p.SyncReport(ctx, report.ID, "2024-04-10"); err != nil {
		t.Fatalf("second SyncReport: %v", err)
	}
	second := reportValues(t, p, report.ID)

	if len(first) != len(second) {
		t.Fatalf("cell count changed between runs: %d then %d", len(first), len(second))
	}
	for pos, val := range first {
		if second[pos] != val {
			t.Errorf("cell %v changed between runs: %q then %q", pos, val, second[pos])
		}
	}
}

func TestForwardSyncWithoutDateIsNoOp(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 1")
	report := mustCreateSheet(t, db, "Отчет")
	mustLink(t, db, report.ID, journal.ID)
	seedJournalRow(t, p, journal.ID, 2, "01.05.2024", "03.05.2024", "Гость", "", "1", "")

	if err := p.SyncReport(ctx, report.ID, ""); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}
	if values := reportValues(t, p, report.ID); len(values) != 0 {
		t.Fatalf("expected untouched report, got %d cells", len(values))
	}
}

func TestForwardSyncGarbageDatesNeverMatch(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 2")
	report := mustCreateSheet(t, db, "Отчет")
	mustLink(t, db, report.ID, journal.ID)

	seedJournalRow(t, p, journal.ID, 2, "скоро", "не знаю", "Гость", "", "1", "")

	if err := p.SyncReport(ctx, report.ID, "2024-03-05"); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}
	values := reportValues(t, p, report.ID)
	if _, ok := values[[2]int{2, 0}]; ok {
		t.Fatal("garbage dates matched the report date")
	}
}

func TestForwardSyncSkipsHeaderRow(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 9")
	report := mustCreateSheet(t, db, "Отчет")
	mustLink(t, db, report.ID, journal.ID)

	// row 0 is the journal header; it must never produce a report row
	seedJournalRow(t, p, journal.ID, 0, "05.03.2024", "08.03.2024", "Заголовок", "", "", "")

	if err := p.SyncReport(ctx, report.ID, "2024-03-05"); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}
	values := reportValues(t, p, report.ID)
	if _, ok := values[[2]int{2, 0}]; ok {
		t.Fatal("header row produced a report row")
	}
}

func TestForwardSyncMultipleJournalsOneRowEach(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journalA := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	journalB := mustCreateSheet(t, db, "Журнал заселения Дом 3")
	report := mustCreateSheet(t, db, "Отчет заселения/выселения")
	mustLink(t, db, report.ID, journalA.ID)
	mustLink(t, db, report.ID, journalB.ID)

	seedJournalRow(t, p, journalA.ID, 2, "05.03.2024", "07.03.2024", "Иванов И.И.", "", "1", "")
	seedJournalRow(t, p, journalB.ID, 2, "05.03.2024", "06.03.2024", "Петров П.П.", "", "2", "")

	if err := p.SyncReport(ctx, report.ID, "2024-03-05"); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}
	values := reportValues(t, p, report.ID)
	if values[[2]int{2, 0}] != "Cottage 5" || values[[2]int{3, 0}] != "Дом 3" {
		t.Fatalf("expected one row per journal in link order, got %q and %q",
			values[[2]int{2, 0}], values[[2]int{3, 0}])
	}
	if values[[2]int{2, 1}] != models.HouseStatusCheckIn {
		t.Fatalf("status = %q, want %q", values[[2]int{2, 1}], models.HouseStatusCheckIn)
	}
}

func TestReverseSyncTargetsMatchingGuestRow(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	report := mustCreateSheet(t, db, "Отчет заселения/выселения")
	mustLink(t, db, report.ID, journal.ID)

	seedJournalRow(t, p, journal.ID, 2, "04.03.2024", "06.03.2024", "Петров П.П.", "", "1", "")
	seedJournalRow(t, p, journal.ID, 3, "05.03.2024", "09.03.2024", "Иванов И.И.", "", "2", "")

	if err := p.SyncReport(ctx, report.ID, "2024-03-05"); err != nil {
		t.Fatalf("SyncReport: %v", err)
	}

	// edit the day-comments column on the synced report row
	cell, _, err := p.ProcessCellUpdate(ctx, report,
		models.NewCell{Row: 2, Column: models.ReportColDayComments, Value: strPtr("доплата наличными")}, 1, "Test")
	if err != nil {
		t.Fatalf("ProcessCellUpdate: %v", err)
	}
	if cell.Value != "доплата наличными" {
		t.Fatalf("report write lost: %q", cell.Value)
	}

	target, err := p.Store.Get(ctx, journal.ID, 3, models.JournalColDayComment)
	if err != nil {
		t.Fatalf("Get journal target: %v", err)
	}
	if target.Value != "доплата наличными" {
		t.Fatalf("journal day comment = %q, want the report edit", target.Value)
	}

	other, err := p.Store.Get(ctx, journal.ID, 2, models.JournalColDayComment)
	if err != nil {
		t.Fatalf("Get other row: %v", err)
	}
	if other.Value != "" {
		t.Fatalf("reverse sync touched the wrong journal row: %q", other.Value)
	}
}

func TestReverseSyncMissingGuestAbortsSilently(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	report := mustCreateSheet(t, db, "Отчет")
	mustLink(t, db, report.ID, journal.ID)

	// report row with an address but a guest who is not in the journal
	for col, val := range map[int]string{0: "Cottage 5", 6: "Неизвестный Г.Г."} {
		v := val
		if _, _, err := p.Store.Upsert(ctx, report.ID, models.NewCell{Row: 2, Column: col, Value: &v}, 1, "Test"); err != nil {
			t.Fatalf("seed report cell: %v", err)
		}
	}

	cell, _, err := p.ProcessCellUpdate(ctx, report,
		models.NewCell{Row: 2, Column: models.ReportColDayComments, Value: strPtr("комментарий")}, 1, "Test")
	if err != nil {
		t.Fatalf("report write must still succeed: %v", err)
	}
	if cell.Value != "комментарий" {
		t.Fatalf("report write lost: %q", cell.Value)
	}
}

func TestJournalEditFansOutToLinkedReport(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Cottage 5")
	report := mustCreateSheet(t, db, "Отчет заселения/выселения")
	reportDate := "2024-03-05"
	if err := db.Model(report).Update("report_date", reportDate).Error; err != nil {
		t.Fatalf("set report date: %v", err)
	}
	mustLink(t, db, report.ID, journal.ID)

	inputs := []models.NewCell{
		{Row: 2, Column: models.JournalColCheckInDate, Value: strPtr("05.03.2024")},
		{Row: 2, Column: models.JournalColCheckOutDate, Value: strPtr("08.03.2024")},
		{Row: 2, Column: models.JournalColGuest, Value: strPtr("Иванов И.И.")},
	}
	if _, err := p.BatchIngest(ctx, journal, inputs, 1, "Test"); err != nil {
		t.Fatalf("BatchIngest: %v", err)
	}

	values := reportValues(t, p, report.ID)
	if values[[2]int{2, 0}] != "Cottage 5" || values[[2]int{2, 6}] != "Иванов И.И." {
		t.Fatalf("fan-out did not refresh the report: %v", values)
	}
}
