package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eCard/internal/auth"
)

// 上下文键，handler 通过 c.Get 读取。
const (
	UserIDKey             = "userID"
	MustChangePasswordKey = "mustChangePassword"
)

// TokenValidator 是鉴权中间件依赖的令牌校验能力。
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
}

// BearerToken 从 Authorization 头中取出令牌，格式不对时返回空串。
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware 校验访问令牌并将 userID 注入上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken := BearerToken(c.GetHeader("Authorization"))
		if rawToken == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateToken(rawToken)
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(MustChangePasswordKey, claims.MustChangePassword)
		c.Next()
	}
}
