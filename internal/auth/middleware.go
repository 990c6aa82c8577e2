package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuthMiddleware Bearer Token 认证中间件，成功后将操作人写入请求上下文
func BearerAuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing authorization header",
			})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		actor, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid token",
				"detail":  err.Error(),
			})
			return
		}

		c.Set("username", actor.Username)
		c.Set("roles", actor.Roles)
		if actor.UserID != nil {
			c.Set("user_id", *actor.UserID)
		}
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), *actor))
		c.Next()
	}
}

// ClientInfoMiddleware 将客户端 IP 与 User-Agent 写入请求上下文
func ClientInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := ClientInfo{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		c.Request = c.Request.WithContext(WithClient(c.Request.Context(), info))
		c.Next()
	}
}

// RequireRole 要求操作人拥有指定角色
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c.Request.Context())
		if !ok || !actor.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    403,
				"message": "forbidden",
				"detail":  "role " + role + " is required",
			})
			return
		}
		c.Next()
	}
}
