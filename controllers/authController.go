package controllers

import (
	"errors"
	"net/http"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges credentials for a bearer token. Bad email and bad password
// answer identically so the endpoint does not leak which accounts exist.
func (h *Controller) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ? AND is_active = ?", req.Email, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		config.LogError(h.Logger, "authController.go", "Login", "FetchUser", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := utils.ComparePassword(user.Password, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := utils.JwtGenerate(user.ID, user.RoleId, user.Name)
	if err != nil {
		config.LogError(h.Logger, "authController.go", "Login", "JwtGenerate", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}
