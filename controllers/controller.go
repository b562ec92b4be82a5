package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/grid"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/dmdcottage/sheets_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Controller carries the shared dependencies of every HTTP handler. Handlers
// never reach for package-level state; everything they touch comes in here.
type Controller struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Store    *grid.Store
	Pipeline *workflow.Pipeline
}

func New(db *gorm.DB, logger *logrus.Logger, store *grid.Store, pipeline *workflow.Pipeline) *Controller {
	return &Controller{
		DB:       db,
		Logger:   logger,
		Store:    store,
		Pipeline: pipeline,
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}

// loadSheet fetches the sheet and resolves the caller's permissions on it in
// one step. A false return means the response has already been written.
func (h *Controller) loadSheet(c *gin.Context, needWrite bool) (*models.Sheet, bool) {
	sheetId, ok := intParam(c, "sheetId")
	if !ok {
		return nil, false
	}

	var sheet models.Sheet
	err := h.DB.WithContext(c.Request.Context()).First(&sheet, sheetId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
		return nil, false
	}
	if err != nil {
		config.LogError(h.Logger, "controller.go", "loadSheet", "FetchSheet", sheetId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}

	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	canRead, canWrite, err := models.SheetAccess(h.DB.WithContext(c.Request.Context()), userId, &sheet)
	if err != nil {
		config.LogError(h.Logger, "controller.go", "loadSheet", "SheetAccess", sheetId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	if !canRead || (needWrite && !canWrite) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}

	return &sheet, true
}

func (h *Controller) identity(c *gin.Context) (int, string) {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	userName, _ := utils.GetUserNameFromContext(c.Request.Context())
	return userId, userName
}
