package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"gorm.io/gorm"
)

const (
	BookingActionUpsert = "create_or_update"
	BookingActionDelete = "delete_booking"
)

// Booking is one reservation extracted from a provider webhook payload.
type Booking struct {
	Id             string
	ApartmentTitle string
	BeginDate      time.Time
	EndDate        time.Time
	DaysCount      int
	GuestName      string
	Phone          string
	TotalAmount    string
	Prepayment     string
	PricePerDay    string
	Source         string
	Notes          string
}

type webhookBooking struct {
	Id        json.Number `json:"id"`
	Apartment struct {
		Title string `json:"title"`
	} `json:"apartment"`
	BeginDate string `json:"begin_date"`
	EndDate   string `json:"end_date"`
	Client    struct {
		Fio   string `json:"fio"`
		Phone string `json:"phone"`
	} `json:"client"`
	Amount      json.Number `json:"amount"`
	Prepayment  json.Number `json:"prepayment"`
	PricePerDay json.Number `json:"price_per_day"`
	Source      string      `json:"source"`
	Notes       string      `json:"notes"`
}

type webhookEnvelope struct {
	Action string `json:"action"`
	Data   struct {
		Booking *webhookBooking `json:"booking"`
	} `json:"data"`
}

// ParseBookingWebhook extracts the action and booking from a provider
// payload. Providers send either a bare envelope or an array of wrapped
// envelopes; both shapes are accepted.
func ParseBookingWebhook(raw []byte) (string, *Booking, error) {

	var envelope webhookEnvelope

	var wrapped []struct {
		Body webhookEnvelope `json:"body"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped) > 0 {
		envelope = wrapped[0].Body
	} else if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", nil, err
	}

	src := envelope.Data.Booking
	if src == nil {
		return "", nil, errors.New("no booking in webhook payload")
	}

	action := envelope.Action
	if action == "" {
		action = BookingActionUpsert
	}

	begin, err := time.Parse("2006-01-02", src.BeginDate)
	if err != nil {
		return "", nil, err
	}
	end, err := time.Parse("2006-01-02", src.EndDate)
	if err != nil {
		return "", nil, err
	}
	days := int(math.Ceil(end.Sub(begin).Hours() / 24))

	return action, &Booking{
		Id:             src.Id.String(),
		ApartmentTitle: src.Apartment.Title,
		BeginDate:      begin,
		EndDate:        end,
		DaysCount:      days,
		GuestName:      src.Client.Fio,
		Phone:          src.Client.Phone,
		TotalAmount:    src.Amount.String(),
		Prepayment:     src.Prepayment.String(),
		PricePerDay:    src.PricePerDay.String(),
		Source:         src.Source,
		Notes:          src.Notes,
	}, nil
}

// TargetSheetsForApartment resolves the journals whose webhook mapping lists
// the apartment title.
func (p *Pipeline) TargetSheetsForApartment(ctx context.Context, apartmentTitle string) ([]models.Sheet, error) {

	var mappings []models.WebhookMapping
	err := p.DB.WithContext(ctx).Where("is_active = ?", true).Find(&mappings).Error
	if err != nil {
		return nil, err
	}

	var sheets []models.Sheet
	for _, mapping := range mappings {
		var titles []string
		if err := json.Unmarshal([]byte(mapping.ApartmentTitles), &titles); err != nil {
			continue
		}
		matched := false
		for _, title := range titles {
			if title == apartmentTitle {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		var sheet models.Sheet
		if err := p.DB.WithContext(ctx).First(&sheet, mapping.SheetId).Error; err != nil {
			continue
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// TargetSheetsForBooking resolves the journals that currently hold cells for
// a booking id, used for deletes.
func (p *Pipeline) TargetSheetsForBooking(ctx context.Context, bookingId string) ([]models.Sheet, error) {

	var cells []models.Cell
	err := p.DB.WithContext(ctx).
		Where("booking_id = ?", bookingId).
		Find(&cells).Error
	if err != nil {
		return nil, err
	}

	seen := map[int]bool{}
	var sheets []models.Sheet
	for _, cell := range cells {
		if seen[cell.SheetId] {
			continue
		}
		seen[cell.SheetId] = true
		var sheet models.Sheet
		if err := p.DB.WithContext(ctx).First(&sheet, cell.SheetId).Error; err != nil {
			continue
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// ApplyBooking writes a booking into a journal on the fixed column contract:
// an existing booking updates its row in place, a new one lands on the first
// row after the last filled one. Linked reports resync afterwards.
func (p *Pipeline) ApplyBooking(ctx context.Context, sheet *models.Sheet, b *Booking, userId int, userName string) error {

	var existing []models.Cell
	err := p.DB.WithContext(ctx).
		Where("sheet_id = ? AND booking_id = ?", sheet.ID, b.Id).
		Order("`row`").
		Find(&existing).Error
	if err != nil {
		config.LogError(p.Logger, "webhookWorkflow.go", "ApplyBooking", "FetchExisting", b.Id, err)
		return err
	}

	var targetRow int
	if len(existing) > 0 {
		targetRow = existing[0].Row
	} else {
		var last models.Cell
		err = p.DB.WithContext(ctx).
			Where("sheet_id = ? AND value <> ''", sheet.ID).
			Order("`row` DESC").
			First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogError(p.Logger, "webhookWorkflow.go", "ApplyBooking", "FetchLastRow", sheet.ID, err)
			return err
		}
		targetRow = last.Row + 1
	}

	emptyFormula := ""
	bookingId := b.Id
	columns := map[int]string{
		models.JournalColMonth:          utils.FormatMonthYear(b.BeginDate),
		models.JournalColCheckInDate:    utils.FormatJournalDate(b.BeginDate),
		models.JournalColDayCount:       strconv.Itoa(b.DaysCount),
		models.JournalColCheckOutDate:   utils.FormatJournalDate(b.EndDate),
		models.JournalColGuest:          b.GuestName,
		models.JournalColPhone:          b.Phone,
		models.JournalColTotalAmount:    b.TotalAmount,
		models.JournalColPrepayment:     b.Prepayment,
		models.JournalColExtraCharge:    b.PricePerDay,
		models.JournalColBookingSource:  b.Source,
		models.JournalColPaymentComment: b.Notes,
	}

	cols := make([]int, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	for _, col := range cols {
		value := columns[col]
		input := models.NewCell{
			Row:       targetRow,
			Column:    col,
			Value:     &value,
			Formula:   &emptyFormula,
			BookingId: &bookingId,
		}
		if _, _, err := p.Store.Upsert(ctx, sheet.ID, input, userId, userName); err != nil {
			return err
		}
	}

	p.FanOut(ctx, sheet.ID)
	return nil
}

// DeleteBooking removes every cell of a booking from the journal and shifts
// the rows below it up one position, then resyncs linked reports.
func (p *Pipeline) DeleteBooking(ctx context.Context, sheet *models.Sheet, bookingId string) error {

	var bookingCells []models.Cell
	err := p.DB.WithContext(ctx).
		Where("sheet_id = ? AND booking_id = ?", sheet.ID, bookingId).
		Order("`row`").
		Find(&bookingCells).Error
	if err != nil {
		config.LogError(p.Logger, "webhookWorkflow.go", "DeleteBooking", "FetchCells", bookingId, err)
		return err
	}
	if len(bookingCells) == 0 {
		return nil
	}
	targetRow := bookingCells[0].Row

	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sheet_id = ? AND booking_id = ?", sheet.ID, bookingId).
			Delete(&models.Cell{}).Error; err != nil {
			return err
		}

		var rows []int
		if err := tx.Model(&models.Cell{}).
			Where("sheet_id = ? AND `row` > ?", sheet.ID, targetRow).
			Distinct().Order("`row`").
			Pluck("row", &rows).Error; err != nil {
			return err
		}

		// shift top-down so every row moves into an already vacated slot
		for _, row := range rows {
			if err := tx.Model(&models.Cell{}).
				Where("sheet_id = ? AND `row` = ?", sheet.ID, row).
				Update("row", row-1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(p.Logger, "webhookWorkflow.go", "DeleteBooking", "DeleteAndShift", bookingId, err)
		return err
	}

	p.FanOut(ctx, sheet.ID)
	return nil
}
