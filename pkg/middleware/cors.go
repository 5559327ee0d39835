package middleware

import (
	"net/http"

	"form-builder-backend/pkg/config"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	// 配置CORS选项
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"Cache-Control",
		},
		AllowCredentials: true,
		MaxAge:           300, // 5分钟
	}

	// 开发环境允许所有来源
	if cfg.IsDevelopment() {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false // 当AllowedOrigins为*时，不能设置AllowCredentials为true
	}

	// 如果配置了特定的允许来源，则使用配置的值
	if len(cfg.AllowedOrigins) > 0 && cfg.AllowedOrigins[0] != "*" {
		corsOptions.AllowedOrigins = cfg.AllowedOrigins
		corsOptions.AllowCredentials = true
	}

	return cors.Handler(corsOptions)
}
