package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"clearchoice-backend/pkg/config"
)

// Logger 创建日志中间件
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.IsProduction() {
		return structuredLogger
	}
	// 开发环境使用Chi的彩色日志
	return middleware.Logger
}

// structuredLogger 生产环境：每请求一行JSON
func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		userInfo := "anonymous"
		if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
			userInfo = user.Email
		}

		fmt.Printf(`{"time":"%s","method":"%s","path":"%s","status":%d,"duration":"%s","user":"%s","ip":"%s"}`+"\n",
			time.Now().Format(time.RFC3339),
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			userInfo,
			getClientIP(r),
		)
	})
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	// 代理/负载均衡器头优先
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
