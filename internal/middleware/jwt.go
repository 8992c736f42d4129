package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/likegate/internal/pkg/errcode"
	"github.com/xxxsen/likegate/internal/pkg/jwt"
	"github.com/xxxsen/likegate/internal/pkg/response"
)

const ContextUserIDKey = "user_id"

// JWTAuth refuses every request when secret is empty, since an HS256 token
// signed with an empty key can be produced by anyone.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			response.Error(c, errcode.ErrUnauthorized, "authorization not configured")
			c.Abort()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by JWTAuth, 0 if absent.
func UserID(c *gin.Context) int64 {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
