package middleware

import (
	"context"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserChecker 校验 token 对应的用户仍然存在
type UserChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

func AuthMiddleware(secret string, users UserChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if tokenString == "" {
			util.Error(c, http.StatusUnauthorized, "No token provided")
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret)
		if err != nil || claims.TokenType != util.TokenTypeAccess {
			util.Error(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		exists, err := users.Exists(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Log.Error("auth user lookup failed", zap.String("userId", claims.UserID), zap.Error(err))
			util.InternalServerError(c)
			c.Abort()
			return
		}
		if !exists {
			util.Error(c, http.StatusUnauthorized, "User not found")
			c.Abort()
			return
		}

		util.SetUserInContext(c, claims)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
