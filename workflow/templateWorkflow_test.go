package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/workflow"
)

func TestCreateReportRequiresMarkerInName(t *testing.T) {
	pipeline, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Лесная 1")

	_, err := pipeline.CreateReport(ctx, "Сводка по дням", []int{journal.ID}, "", 1)
	if !errors.Is(err, workflow.ErrReportNameMarker) {
		t.Fatalf("CreateReport without marker: err = %v, want ErrReportNameMarker", err)
	}

	var count int64
	if err := db.Model(&models.Sheet{}).Where("name = ?", "Сводка по дням").Count(&count).Error; err != nil {
		t.Fatalf("count sheets: %v", err)
	}
	if count != 0 {
		t.Fatal("rejected report was still created")
	}
}

func TestCreateReportSeedsLinksAndTemplate(t *testing.T) {
	pipeline, db := newPipeline(t)
	ctx := context.Background()

	journal := mustCreateSheet(t, db, "Журнал заселения Лесная 1")

	report, err := pipeline.CreateReport(ctx, "Отчет по заселению", []int{journal.ID}, "", 1)
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if !report.IsReport() {
		t.Fatalf("created sheet %q does not resolve as a report", report.Name)
	}

	var links []models.ReportSource
	if err := db.Where("report_sheet_id = ?", report.ID).Find(&links).Error; err != nil {
		t.Fatalf("fetch links: %v", err)
	}
	if len(links) != 1 || links[0].JournalSheetId != journal.ID {
		t.Fatalf("unexpected links: %+v", links)
	}

	for _, col := range []int{models.ReportColCheckOutStart, models.ReportColCheckInStart} {
		var seeded int64
		err := db.Model(&models.Cell{}).
			Where("sheet_id = ? AND `column` = ? AND format <> ''", report.ID, col).
			Count(&seeded).Error
		if err != nil {
			t.Fatalf("count border seeds: %v", err)
		}
		if seeded == 0 {
			t.Fatalf("no border seeds in column %d", col)
		}
	}
}
