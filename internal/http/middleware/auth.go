package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vbilous/contactbook/internal/auth"
	"github.com/vbilous/contactbook/internal/domain"
)

const (
	currentUserKey = "currentUser"
	accessTokenKey = "accessToken"
)

// Auth validates the Authorization header and attaches the resolved user.
type Auth struct {
	AuthService *auth.Service
}

// Authenticate ensures the request carries a valid bearer token.
func (m *Auth) Authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Bearer token required."})
		return
	}

	user, err := m.AuthService.ResolveCurrentUser(c.Request.Context(), parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Invalid access token."})
		return
	}

	c.Set(currentUserKey, user)
	c.Set(accessTokenKey, parts[1])
	c.Next()
}

// RequireAdmin aborts unless the authenticated user has the admin role.
// Must run after Authenticate.
func (m *Auth) RequireAdmin(c *gin.Context) {
	user, ok := GetCurrentUser(c)
	if !ok || user.Role != domain.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Insufficient privileges."})
		return
	}
	c.Next()
}

// GetCurrentUser exposes the authenticated user to handlers.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

// GetAccessToken returns the raw bearer token of the request.
func GetAccessToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(accessTokenKey)
	if !ok {
		return "", false
	}
	raw, ok := value.(string)
	return raw, ok
}
