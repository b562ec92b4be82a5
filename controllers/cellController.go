package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/formula"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/gin-gonic/gin"
)

const rangeFormatMaxCells = 10000

// GetCell returns a single cell. Unwritten positions come back as an empty
// cell at the requested coordinates rather than a 404.
func (h *Controller) GetCell(c *gin.Context) {
	sheet, ok := h.loadSheet(c, false)
	if !ok {
		return
	}
	row, ok := intParam(c, "row")
	if !ok {
		return
	}
	column, ok := intParam(c, "column")
	if !ok {
		return
	}

	cell, err := h.Store.Get(c.Request.Context(), sheet.ID, row, column)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	view := cellView{Cell: cell, Display: cell.Value}
	if cell.Formula != "" {
		eval := formula.NewEvaluator(h.storeResolver(c, sheet.ID))
		view.Display = eval.EvaluateCell(cell.Row, cell.Column, cell.Formula).Display()
	}

	c.JSON(http.StatusOK, view)
}

// UpdateCell applies one cell mutation and runs its downstream effects
// (journal fan-out or reverse sync). Coordinates come from the path; body
// coordinates are ignored.
func (h *Controller) UpdateCell(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}
	row, ok := intParam(c, "row")
	if !ok {
		return
	}
	column, ok := intParam(c, "column")
	if !ok {
		return
	}

	var input models.NewCell
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	input.Row = row
	input.Column = column

	userId, userName := h.identity(c)
	cell, changeType, err := h.Pipeline.ProcessCellUpdate(c.Request.Context(), sheet, input, userId, userName)
	if err != nil {
		config.LogError(h.Logger, "cellController.go", "UpdateCell", "ProcessCellUpdate", input, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cell":        cell,
		"change_type": changeType,
	})
}

// GetCellHistory returns the change ledger of one cell, newest first.
func (h *Controller) GetCellHistory(c *gin.Context) {
	sheet, ok := h.loadSheet(c, false)
	if !ok {
		return
	}
	row, ok := intParam(c, "row")
	if !ok {
		return
	}
	column, ok := intParam(c, "column")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := h.Store.QueryHistory(c.Request.Context(), sheet.ID, row, column, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type batchRequest struct {
	Cells []models.NewCell `json:"cells" binding:"required,min=1,dive"`
}

// BatchCells ingests an ordered list of mutations for one sheet. The first
// failing item aborts the remainder; already applied items stay applied and
// are reported back.
func (h *Controller) BatchCells(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	for _, input := range req.Cells {
		if input.Row < 0 || input.Column < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "row and column must be non-negative"})
			return
		}
	}

	userId, userName := h.identity(c)
	applied, err := h.Pipeline.BatchIngest(c.Request.Context(), sheet, req.Cells, userId, userName)
	if err != nil {
		config.LogError(h.Logger, "cellController.go", "BatchCells", "BatchIngest", sheet.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "batch aborted",
			"applied": len(applied),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cells": applied,
		"count": len(applied),
	})
}

type formatRangeRequest struct {
	StartRow    int                    `json:"start_row"`
	EndRow      int                    `json:"end_row"`
	StartColumn int                    `json:"start_column"`
	EndColumn   int                    `json:"end_column"`
	Format      map[string]interface{} `json:"format" binding:"required"`
}

// FormatRange overlays a style patch onto every cell of a rectangle. Each
// cell keeps the format keys the patch does not mention, and each write
// lands in the ledger like any other format change.
func (h *Controller) FormatRange(c *gin.Context) {
	sheet, ok := h.loadSheet(c, true)
	if !ok {
		return
	}

	var req formatRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	if req.StartRow < 0 || req.StartColumn < 0 || req.EndRow < req.StartRow || req.EndColumn < req.StartColumn {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	area := (req.EndRow - req.StartRow + 1) * (req.EndColumn - req.StartColumn + 1)
	if area > rangeFormatMaxCells {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range too large"})
		return
	}

	userId, userName := h.identity(c)
	count := 0
	for row := req.StartRow; row <= req.EndRow; row++ {
		for column := req.StartColumn; column <= req.EndColumn; column++ {
			prior, err := h.Store.Get(c.Request.Context(), sheet.ID, row, column)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "applied": count})
				return
			}
			merged := mergeFormat(prior.Format, req.Format)
			input := models.NewCell{Row: row, Column: column, Format: &merged}
			if _, _, err := h.Store.Upsert(c.Request.Context(), sheet.ID, input, userId, userName); err != nil {
				config.LogError(h.Logger, "cellController.go", "FormatRange", "Upsert", input, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "applied": count})
				return
			}
			count++
		}
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// mergeFormat overlays the patch keys onto the stored format JSON. A stored
// format that fails to parse is treated as empty.
func mergeFormat(existing string, patch map[string]interface{}) string {
	merged := make(map[string]interface{})
	if existing != "" {
		_ = json.Unmarshal([]byte(existing), &merged)
	}
	for key, value := range patch {
		merged[key] = value
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return string(out)
}

// storeResolver resolves formula references straight from the store, for
// single-cell reads where loading the whole sheet would be wasteful.
func (h *Controller) storeResolver(c *gin.Context, sheetId int) formula.Resolver {
	return func(row, column int) (string, string) {
		cell, err := h.Store.Get(c.Request.Context(), sheetId, row, column)
		if err != nil {
			return "", ""
		}
		return cell.Value, cell.Formula
	}
}
