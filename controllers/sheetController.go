package controllers

import (
	"net/http"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/formula"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/gin-gonic/gin"
)

type cellView struct {
	*models.Cell
	Display string `json:"display"`
}

// GetSheet returns the sheet record plus every stored cell. Formula cells
// carry a computed display value resolved against the sheet snapshot.
func (h *Controller) GetSheet(c *gin.Context) {
	sheet, ok := h.loadSheet(c, false)
	if !ok {
		return
	}

	cells, err := h.Store.GetSheetCells(c.Request.Context(), sheet.ID)
	if err != nil {
		config.LogError(h.Logger, "sheetController.go", "GetSheet", "FetchCells", sheet.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	eval := formula.NewEvaluator(snapshotResolver(cells))

	views := make([]cellView, 0, len(cells))
	for _, cell := range cells {
		view := cellView{Cell: cell, Display: cell.Value}
		if cell.Formula != "" {
			view.Display = eval.EvaluateCell(cell.Row, cell.Column, cell.Formula).Display()
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"sheet": sheet,
		"cells": views,
	})
}

// snapshotResolver resolves cell references against an in-memory list of a
// sheet's cells, so one read serves the whole evaluation.
func snapshotResolver(cells []*models.Cell) formula.Resolver {
	type position struct{ row, column int }
	index := make(map[position]*models.Cell, len(cells))
	for _, cell := range cells {
		index[position{cell.Row, cell.Column}] = cell
	}
	return func(row, column int) (string, string) {
		cell, ok := index[position{row, column}]
		if !ok {
			return "", ""
		}
		return cell.Value, cell.Formula
	}
}
