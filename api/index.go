package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clearchoice-backend/pkg/config"
	"clearchoice-backend/pkg/database"
	"clearchoice-backend/pkg/handlers"
	customMiddleware "clearchoice-backend/pkg/middleware"
	"clearchoice-backend/pkg/utils"
)

// Handler 是Vercel函数的入口点
// 单体路由模式：所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 获取池化的数据库连接（冷启动之间复用）
	db := database.GetDatabase(database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		LocalDBPath: cfg.LocalDBPath,
		PostgresDSN: cfg.PostgresDSN,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
		Debug:       cfg.Debug,
	})
	// 注意：连接由连接池管理，无需手动关闭

	// 创建Chi路由器
	router := chi.NewRouter()

	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)

	router.ServeHTTP(w, r)
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second)) // 留5秒缓冲

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 请求体限制与Content-Type校验
	router.Use(customMiddleware.MaxBodySize(1 << 20)) // 1MB
	router.Use(customMiddleware.ContentTypeJSON)

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	// 创建处理器
	authHandler := handlers.NewAuthHandler(cfg, db)
	tabHandler := handlers.NewTabHandler(cfg, db)

	// 健康检查端点
	router.Get("/", authHandler.HealthCheck)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)

			// OAuth路由
			r.Post("/oauth/google", authHandler.GoogleOAuth)
			r.Post("/oauth/github", authHandler.GitHubOAuth)
		})

		// OAuth回调路由（浏览器重定向进入）
		r.Route("/oauth", func(r chi.Router) {
			r.Get("/google/callback", authHandler.GoogleOAuthCallback)
			r.Get("/github/callback", authHandler.GitHubOAuthCallback)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))
			r.Get("/user/profile", authHandler.Profile)
		})

		// Tab路由：前端当前不携带令牌，认证为可选
		r.Route("/tab", func(r chi.Router) {
			r.Use(customMiddleware.OptionalAuthMiddleware(cfg))

			r.Post("/save", tabHandler.SaveTab)
			r.Get("/list/{userId}", tabHandler.ListTabs)
			r.Get("/history/{userId}", tabHandler.History)
			r.Get("/{tabId}", tabHandler.GetTab)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
