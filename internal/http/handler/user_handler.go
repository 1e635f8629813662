package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vbilous/contactbook/internal/auth"
	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/http/middleware"
)

// 5 MiB is plenty for a profile image.
const maxAvatarBytes = 5 << 20

// UserHandler exposes the current-user surface and admin user management.
type UserHandler struct {
	Auth *auth.Service
}

// NewUserHandler constructs the handler.
func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{Auth: authService}
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateAvatar accepts a multipart upload and replaces the user's avatar.
func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Multipart field 'file' is required."})
		return
	}
	if fileHeader.Size > maxAvatarBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Avatar exceeds the 5 MiB limit."})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Avatar must be an image."})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	updated, err := h.Auth.UpdateAvatar(c.Request.Context(), user, contentType, file)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ChangeRole sets another user's role. Admin only; the route is guarded by
// RequireAdmin and the service checks again.
func (h *UserHandler) ChangeRole(c *gin.Context) {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid user id."})
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}

	if err := h.Auth.ChangeRole(c.Request.Context(), actor, targetID, domain.Role(req.Role)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Role updated."})
}
