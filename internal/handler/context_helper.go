package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transfer-board-api/internal/middleware"
	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
	"github.com/noah-isme/transfer-board-api/pkg/response"
)

// requireSession writes 401 and returns false when the request carries no session.
func requireSession(c *gin.Context) (models.Session, bool) {
	session, ok := middleware.CurrentSession(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Session{}, false
	}
	return session, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be an integer")
	}
	return value, nil
}

func queryStatus(c *gin.Context) *models.TransferStatus {
	raw := c.Query("status")
	if raw == "" {
		return nil
	}
	status := models.TransferStatus(raw)
	return &status
}
