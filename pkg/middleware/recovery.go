package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					// 记录panic信息
					stack := debug.Stack()
					fmt.Printf("❌ PANIC: %v\n", err)
					fmt.Printf("📍 Stack trace:\n%s\n", stack)

					if cfg.IsDevelopment() {
						// 开发环境：显示详细错误信息
						utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
							"INTERNAL_SERVER_ERROR",
							fmt.Sprintf("Internal server error: %v", err),
							string(stack))
					} else {
						// 生产环境：隐藏详细错误信息
						utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
