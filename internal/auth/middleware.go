package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"media-pipeline/pkg/models"
)

// Middleware guards gin routes behind token authentication
type Middleware struct {
	service *Service
}

// NewMiddleware creates an authentication middleware
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// Required enforces authentication for routes
func (m *Middleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		user, err := m.service.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

// GetUser returns the authenticated user from context
func GetUser(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	u, ok := user.(*models.User)
	return u, ok
}
