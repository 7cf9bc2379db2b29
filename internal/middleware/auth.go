// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hbai-chat-go/pkg/token"
)

const (
	// ClaimsKey 是访客声明在 gin 上下文中的键。
	ClaimsKey = "claims"
	// VisitorIDKey 是访客 ID 在 gin 上下文中的键。
	VisitorIDKey = "visitorID"
)

// AuthMiddleware 创建一个 Gin 中间件，用于访客 token 认证。
// 它会从请求头中提取 token，验证其有效性，并将访客 ID 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(VisitorIDKey, claims.VisitorID)
		c.Next()
	}
}

// VisitorID 返回 AuthMiddleware 写入的访客 ID。
func VisitorID(c *gin.Context) string {
	return c.GetString(VisitorIDKey)
}
