package middleware

import (
	"fmt"
	"net/http"
	"time"

	"form-builder-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger 创建日志中间件
// 开发环境使用Chi默认的彩色日志，生产环境输出结构化日志
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.IsProduction() {
		return structuredLogger()
	}
	return middleware.Logger
}

// structuredLogger 生产环境结构化日志中间件
func structuredLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// 处理请求
			next.ServeHTTP(ww, r)

			// 获取用户信息（如果有）
			userInfo := "anonymous"
			if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
				userInfo = user.Email
			}

			fmt.Printf(`{"time":"%s","method":"%s","path":"%s","status":%d,"duration":"%s","user":"%s","ip":"%s","user_agent":"%s"}`+"\n",
				time.Now().Format(time.RFC3339),
				r.Method,
				r.URL.Path,
				ww.Status(),
				time.Since(start),
				userInfo,
				getClientIP(r),
				r.UserAgent(),
			)
		})
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头（代理/负载均衡器）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// 检查X-Real-IP头
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// 使用RemoteAddr
	return r.RemoteAddr
}
