package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dshills/gocommerce/internal/account"
)

const userIDKey = "userID"

// authMiddleware requires a valid "Authorization: Bearer <token>" header and
// stores the caller's user id in the request context.
func authMiddleware(accounts *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   CodeUnauthorized,
				Message: "authorization header required",
			})
			return
		}

		claims, err := accounts.ParseToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   CodeUnauthorized,
				Message: "invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// currentUser returns the id set by authMiddleware
func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
