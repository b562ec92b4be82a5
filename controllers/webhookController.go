package controllers

import (
	"io"
	"net/http"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/workflow"
	"github.com/gin-gonic/gin"
)

// HandleBookingWebhook ingests booking events from the external provider.
// The provider retries on non-2xx responses, so every outcome answers 200;
// rejected or failed payloads are only logged.
func (h *Controller) HandleBookingWebhook(c *gin.Context) {
	logger := h.Logger
	ctx := c.Request.Context()

	if !h.webhookAllowed(c) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "ReadBody", nil, err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	action, booking, err := workflow.ParseBookingWebhook(body)
	if err != nil {
		config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "ParsePayload", string(body), err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	switch action {
	case workflow.BookingActionDelete:
		sheets, err := h.Pipeline.TargetSheetsForBooking(ctx, booking.Id)
		if err != nil {
			config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "TargetSheetsForBooking", booking.Id, err)
			break
		}
		for i := range sheets {
			if err := h.Pipeline.DeleteBooking(ctx, &sheets[i], booking.Id); err != nil {
				config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "DeleteBooking", booking.Id, err)
			}
		}
	default:
		sheets, err := h.Pipeline.TargetSheetsForApartment(ctx, booking.ApartmentTitle)
		if err != nil {
			config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "TargetSheetsForApartment", booking.ApartmentTitle, err)
			break
		}
		for i := range sheets {
			if err := h.Pipeline.ApplyBooking(ctx, &sheets[i], booking, 0, "System"); err != nil {
				config.LogError(logger, "webhookController.go", "HandleBookingWebhook", "ApplyBooking", booking.Id, err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookAllowed gates ingest on the enable flag and the shared secret in
// the request path.
func (h *Controller) webhookAllowed(c *gin.Context) bool {
	var enabled models.SystemSetting
	err := h.DB.WithContext(c.Request.Context()).
		Where("`key` = ?", models.SettingWebhookEnabled).
		First(&enabled).Error
	if err != nil || enabled.Value != "true" {
		return false
	}

	var secret models.SystemSetting
	err = h.DB.WithContext(c.Request.Context()).
		Where("`key` = ?", models.SettingWebhookSecret).
		First(&secret).Error
	if err != nil || secret.Value == "" || secret.Value != c.Param("webhookId") {
		return false
	}

	return true
}
