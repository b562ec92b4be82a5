package controllers

import (
	"errors"
	"net/http"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/dmdcottage/sheets_backend/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type reportDateRequest struct {
	Date string `json:"date" binding:"required"`
}

// UpdateReportDate sets the report's calendar date and rebuilds it from its
// linked journals in one go.
func (h *Controller) UpdateReportDate(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}

	var req reportDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}

	if err := h.Pipeline.SyncReport(c.Request.Context(), sheet.ID, req.Date); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
			return
		}
		config.LogError(h.Logger, "reportController.go", "UpdateReportDate", "SyncReport", sheet.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report_date": req.Date})
}

type sourceView struct {
	JournalSheetId int    `json:"journal_sheet_id"`
	JournalName    string `json:"journal_name"`
}

// ListSources returns the journals feeding this report, in link order.
func (h *Controller) ListSources(c *gin.Context) {
	sheet, ok := h.loadSheet(c, false)
	if !ok {
		return
	}

	var sources []sourceView
	err := h.DB.WithContext(c.Request.Context()).
		Model(&models.ReportSource{}).
		Select("report_sources.journal_sheet_id, sheets.name AS journal_name").
		Joins("JOIN sheets ON sheets.id = report_sources.journal_sheet_id").
		Where("report_sources.report_sheet_id = ?", sheet.ID).
		Order("report_sources.id").
		Scan(&sources).Error
	if err != nil {
		config.LogError(h.Logger, "reportController.go", "ListSources", "FetchSources", sheet.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

type addSourceRequest struct {
	SourceSheetId int `json:"source_sheet_id" binding:"required"`
}

// AddSource links a journal to this report and resyncs the report when it
// already has a date. The resync is best effort.
func (h *Controller) AddSource(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}

	var req addSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}

	var journal models.Sheet
	err := h.DB.WithContext(c.Request.Context()).First(&journal, req.SourceSheetId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source sheet not found"})
		return
	}
	if err != nil {
		config.LogError(h.Logger, "reportController.go", "AddSource", "FetchJournal", req.SourceSheetId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	link := models.ReportSource{
		ReportSheetId:  sheet.ID,
		JournalSheetId: journal.ID,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&link).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "source already linked"})
		return
	}

	if err := h.Pipeline.SyncReport(c.Request.Context(), sheet.ID, ""); err != nil {
		config.LogError(h.Logger, "reportController.go", "AddSource", "Resync", sheet.ID, err)
	}

	c.JSON(http.StatusCreated, gin.H{"source": link})
}

// DeleteSource unlinks a journal from this report and resyncs so rows fed
// by the removed journal disappear.
func (h *Controller) DeleteSource(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}
	sourceSheetId, ok := intParam(c, "sourceSheetId")
	if !ok {
		return
	}

	result := h.DB.WithContext(c.Request.Context()).
		Where("report_sheet_id = ? AND journal_sheet_id = ?", sheet.ID, sourceSheetId).
		Delete(&models.ReportSource{})
	if result.Error != nil {
		config.LogError(h.Logger, "reportController.go", "DeleteSource", "DeleteLink", sourceSheetId, result.Error)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not linked"})
		return
	}

	if err := h.Pipeline.SyncReport(c.Request.Context(), sheet.ID, ""); err != nil {
		config.LogError(h.Logger, "reportController.go", "DeleteSource", "Resync", sheet.ID, err)
	}

	c.Status(http.StatusNoContent)
}

type createReportRequest struct {
	Name            string `json:"name" binding:"required"`
	JournalSheetIds []int  `json:"journal_sheet_ids"`
	Date            string `json:"date"`
}

// CreateReport bootstraps a report sheet: the record itself, its journal
// links, the section border template, and an initial sync when a date is
// supplied.
func (h *Controller) CreateReport(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}

	userId, _ := h.identity(c)
	sheet, err := h.Pipeline.CreateReport(c.Request.Context(), req.Name, req.JournalSheetIds, req.Date, userId)
	if errors.Is(err, workflow.ErrReportNameMarker) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sheet": sheet})
}
