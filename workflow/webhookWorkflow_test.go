package workflow_test

import (
	"context"
	"testing"

	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/workflow"
)

const bookingPayload = `{
	"action": "create_or_update",
	"data": {
		"booking": {
			"id": 4821,
			"apartment": {"title": "DMD Cottage 5"},
			"begin_date": "2025-01-03",
			"end_date": "2025-01-06",
			"client": {"fio": "Иванов И.И.", "phone": "+7 900 000-00-01"},
			"amount": 21000,
			"prepayment": 5000,
			"price_per_day": 7000,
			"source": "avito",
			"notes": "поздний заезд"
		}
	}
}`

func TestParseBookingWebhook(t *testing.T) {
	action, booking, err := workflow.ParseBookingWebhook([]byte(bookingPayload))
	if err != nil {
		t.Fatalf("ParseBookingWebhook: %v", err)
	}
	if action != workflow.BookingActionUpsert {
		t.Fatalf("action = %q", action)
	}
	if booking.Id != "4821" || booking.ApartmentTitle != "DMD Cottage 5" {
		t.Fatalf("unexpected booking identity: %+v", booking)
	}
	if booking.DaysCount != 3 {
		t.Fatalf("days = %d, want 3", booking.DaysCount)
	}
	if booking.GuestName != "Иванов И.И." || booking.TotalAmount != "21000" {
		t.Fatalf("unexpected booking fields: %+v", booking)
	}
}

func TestParseBookingWebhookArrayShape(t *testing.T) {
	wrapped := `[{"body": ` + bookingPayload + `}]`
	action, booking, err := workflow.ParseBookingWebhook([]byte(wrapped))
	if err != nil {
		t.Fatalf("ParseBookingWebhook: %v", err)
	}
	if action != workflow.BookingActionUpsert || booking.Id != "4821" {
		t.Fatalf("array shape not handled: action=%q booking=%+v", action, booking)
	}
}

func TestParseBookingWebhookRejectsEmptyPayload(t *testing.T) {
	if _, _, err := workflow.ParseBookingWebhook([]byte(`{"action":"create_or_update"}`)); err == nil {
		t.Fatal("expected error for payload without booking")
	}
}

func parsedBooking(t *testing.T) *workflow.Booking {
	t.Helper()
	_, booking, err := workflow.ParseBookingWebhook([]byte(bookingPayload))
	if err != nil {
		t.Fatalf("ParseBookingWebhook: %v", err)
	}
	return booking
}

func TestApplyBookingCreatesJournalRow(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения DMD Cottage 5")
	seedJournalRow(t, p, journal.ID, 1, "01.01.2025", "02.01.2025", "Прежний Гость", "", "1", "")

	if err := p.ApplyBooking(ctx, journal, parsedBooking(t), 0, "webhook"); err != nil {
		t.Fatalf("ApplyBooking: %v", err)
	}

	// lands on the row after the last filled one
	values := reportValues(t, p, journal.ID)
	want := map[[2]int]string{
		{2, models.JournalColMonth}:        "Январь 2025",
		{2, models.JournalColCheckInDate}:  "03.01.2025",
		{2, models.JournalColDayCount}:     "3",
		{2, models.JournalColCheckOutDate}: "06.01.2025",
		{2, models.JournalColGuest}:        "Иванов И.И.",
		{2, models.JournalColTotalAmount}:  "21000",
		{2, models.JournalColPrepayment}:   "5000",
	}
	for pos, wantVal := range want {
		if values[pos] != wantVal {
			t.Errorf("cell %v = %q, want %q", pos, values[pos], wantVal)
		}
	}

	cell, err := p.Store.Get(ctx, journal.ID, 2, models.JournalColGuest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cell.BookingId != "4821" {
		t.Fatalf("booking id not carried: %q", cell.BookingId)
	}
}

func TestApplyBookingUpdatesExistingRow(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения DMD Cottage 5")
	booking := parsedBooking(t)

	if err := p.ApplyBooking(ctx, journal, booking, 0, "webhook"); err != nil {
		t.Fatalf("first ApplyBooking: %v", err)
	}

	booking.GuestName = "Иванова А.А."
	if err := p.ApplyBooking(ctx, journal, booking, 0, "webhook"); err != nil {
		t.Fatalf("second ApplyBooking: %v", err)
	}

	cells, err := p.Store.GetSheetCells(ctx, journal.ID)
	if err != nil {
		t.Fatalf("GetSheetCells: %v", err)
	}
	rows := map[int]bool{}
	for _, cell := range cells {
		rows[cell.Row] = true
	}
	if len(rows) != 1 {
		t.Fatalf("update must reuse the booking's row, found %d rows", len(rows))
	}

	cell, err := p.Store.Get(ctx, journal.ID, 1, models.JournalColGuest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cell.Value != "Иванова А.А." {
		t.Fatalf("guest = %q after update", cell.Value)
	}
}

func TestDeleteBookingShiftsRowsUp(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения DMD Cottage 5")

	if err := p.ApplyBooking(ctx, journal, parsedBooking(t), 0, "webhook"); err != nil {
		t.Fatalf("ApplyBooking: %v", err)
	}
	// a manual row below the webhook one
	seedJournalRow(t, p, journal.ID, 2, "10.01.2025", "12.01.2025", "Петров П.П.", "", "5000", "")

	if err := p.DeleteBooking(ctx, journal, "4821"); err != nil {
		t.Fatalf("DeleteBooking: %v", err)
	}

	var remaining []models.Cell
	if err := db.Where("sheet_id = ? AND booking_id = ?", journal.ID, "4821").Find(&remaining).Error; err != nil {
		t.Fatalf("query booking cells: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("%d booking cells survived the delete", len(remaining))
	}

	cell, err := p.Store.Get(ctx, journal.ID, 1, models.JournalColGuest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cell.Value != "Петров П.П." {
		t.Fatalf("row below was not shifted up: guest at row 1 = %q", cell.Value)
	}
}

func TestTargetSheetsForApartment(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения DMD Cottage 5")
	other := mustCreateSheet(t, db, "Журнал заселения Дом 3")

	mappings := []models.WebhookMapping{
		{SheetId: journal.ID, ApartmentTitles: `["DMD Cottage 5","DMD Cottage 5 (резерв)"]`, IsActive: true},
		{SheetId: other.ID, ApartmentTitles: `["Дом 3"]`, IsActive: true},
	}
	for i := range mappings {
		if err := db.Create(&mappings[i]).Error; err != nil {
			t.Fatalf("create mapping: %v", err)
		}
	}

	sheets, err := p.TargetSheetsForApartment(ctx, "DMD Cottage 5")
	if err != nil {
		t.Fatalf("TargetSheetsForApartment: %v", err)
	}
	if len(sheets) != 1 || sheets[0].ID != journal.ID {
		t.Fatalf("unexpected targets: %+v", sheets)
	}
}
