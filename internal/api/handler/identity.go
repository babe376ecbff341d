package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleAdmin = "admin"

	ctxUserID   = "user_id"
	ctxUserRole = "user_role"
)

// IdentityMiddleware reads the caller identity set by the upstream gateway
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": HeaderUserID + " header is required",
			})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(ctxUserRole) == RoleAdmin
}

// canAccess reports whether the caller may see a job owned by ownerID
func canAccess(c *gin.Context, ownerID string) bool {
	return isAdmin(c) || ownerID == userID(c)
}
