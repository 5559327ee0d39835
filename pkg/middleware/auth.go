package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// AuthMiddleware JWT认证中间件
// 认证失败时直接拒绝请求，不会进入任何处理器逻辑
func AuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			// 解析和验证JWT token
			token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
				// 验证签名方法
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			})

			if err != nil {
				utils.WriteUnauthorizedResponse(w, "Invalid token: "+err.Error())
				return
			}

			// 检查token是否有效
			if !token.Valid {
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			// 获取claims
			claims, ok := token.Claims.(*models.TokenClaims)
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Invalid token claims")
				return
			}

			// 检查token类型（只接受access token）
			if claims.Type != "access" {
				utils.WriteUnauthorizedResponse(w, "Invalid token type")
				return
			}

			// 检查token是否过期
			if time.Now().Unix() > claims.Exp {
				utils.WriteUnauthorizedResponse(w, "Token expired")
				return
			}

			// 创建用户对象并添加到context
			user := &models.User{
				ID:    claims.UserID,
				Email: claims.Email,
			}

			// 将用户信息添加到请求context中
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not authenticated")
	}
	return user, nil
}
