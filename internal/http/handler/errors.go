package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vbilous/contactbook/internal/domain"
)

// respondError maps a service failure to its HTTP shape. Unknown errors are
// reported as opaque 500s so internals never leak to clients.
func respondError(c *gin.Context, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		c.JSON(derr.Status, gin.H{"error": derr.Code, "error_description": derr.Description})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "error_description": "Something went wrong."})
}
