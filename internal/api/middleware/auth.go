package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/livesync/internal/session"
	"github.com/d60-Lab/livesync/pkg/response"
)

const identityKey = "identity"

type Verifier interface {
	Verify(token string) (session.Identity, error)
}

// Auth 校验 Bearer 令牌，把身份放进上下文
func Auth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "authorization header format must be Bearer <token>")
			return
		}
		id, err := v.Verify(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// Identity returns the caller set by Auth.
func Identity(c *gin.Context) session.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(session.Identity)
	return id
}
