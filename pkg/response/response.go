// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

// MetaRefresh is the meta key telling clients to re-fetch their view.
const MetaRefresh = "refresh"

// Envelope wraps either data or an error, never both.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON writes data with optional pagination. Only the first meta map is used.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && len(meta[0]) > 0 {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 and the refresh hint.
func Created(c *gin.Context, data interface{}) {
	Mutated(c, http.StatusCreated, data)
}

// Mutated responds to a successful write and asks the caller to re-read its view.
func Mutated(c *gin.Context, status int, data interface{}) {
	JSON(c, status, data, nil, map[string]interface{}{MetaRefresh: true})
}

// Error converts err to the envelope. Stale-view conflicts carry the refresh hint.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	envelope := Envelope{Error: appErr}
	if appErrors.RequiresRefresh(appErr) {
		envelope.Meta = map[string]interface{}{MetaRefresh: true}
	}
	if appErr.Status == http.StatusTooManyRequests {
		c.Header("Retry-After", "1")
	}
	c.JSON(appErr.Status, envelope)
}

// Abort is Error followed by c.Abort, for middleware.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
