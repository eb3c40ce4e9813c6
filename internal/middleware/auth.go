package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// needsLoginCode is the error code on every 401; clients key their
// login redirect off it.
const needsLoginCode = "needs_login"

// JWTAuth JWT authentication middleware
func JWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.ErrorResponseWithCode(c, http.StatusUnauthorized, needsLoginCode, "Missing authorization header", nil)
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			common.ErrorResponseWithCode(c, http.StatusUnauthorized, needsLoginCode, "Invalid authorization header format", nil)
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrExpiredToken) {
				common.ErrorResponseWithCode(c, http.StatusUnauthorized, needsLoginCode, "Token expired", err)
			} else {
				common.ErrorResponseWithCode(c, http.StatusUnauthorized, needsLoginCode, "Invalid token", err)
			}
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("nickname", claims.Nickname)
		c.Set("level", claims.Level)

		c.Next()
	}
}

// OptionalJWTAuth populates identity from a bearer token when one is
// present and valid, and passes through anonymously otherwise.
func OptionalJWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := jwtManager.VerifyToken(parts[1]); err == nil {
				c.Set("userID", claims.UserID)
				c.Set("nickname", claims.Nickname)
				c.Set("level", claims.Level)
			}
		}
		c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get("userID")
	if !exists {
		return ""
	}
	if str, ok := userID.(string); ok {
		return str
	}
	return ""
}

// GetUserLevel extracts user level from context
func GetUserLevel(c *gin.Context) int {
	level, exists := c.Get("level")
	if !exists {
		return 0
	}
	if lvl, ok := level.(int); ok {
		return lvl
	}
	return 0
}
