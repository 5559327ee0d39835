package handler

import (
	"fmt"
	"net/http"
	"time"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/database"
	"form-builder-backend/pkg/handlers"
	customMiddleware "form-builder-backend/pkg/middleware"
	"form-builder-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 获取复用的数据库连接
	db := database.GetDatabase(database.DatabaseConfig{
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	// 注意：连接由连接池管理，无需手动关闭

	// 创建Chi路由器
	router := chi.NewRouter()

	// 设置全局中间件
	setupMiddleware(router, cfg)

	// 设置路由
	setupRoutes(router, cfg, db)

	// 将请求传递给Chi路由器处理
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

	// 请求体大小限制（表单定义和回复都是JSON文档）
	router.Use(customMiddleware.MaxBodySize(1 << 20))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	// 创建处理器
	authHandler := handlers.NewAuthHandler(cfg, db)
	workspacesHandler := handlers.NewWorkspacesHandler(cfg, db)
	foldersHandler := handlers.NewFoldersHandler(cfg, db)
	formsHandler := handlers.NewFormsHandler(cfg, db)

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
			r.Use(customMiddleware.ContentTypeJSON)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
		})

		// 表单路由：公开访问和需要认证的管理端点共享同一子树
		r.Route("/forms", func(r chi.Router) {
			// 公开路由：填写者不需要账号
			r.Get("/public/{formID}", formsHandler.PublicForm)
			r.Post("/{formID}/responses", formsHandler.CollectResponse)

			// 表单管理路由（需要认证）
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.AuthMiddleware(cfg))
				r.Get("/", formsHandler.ListForms) // expects ?workspace_id=&folder_id=
				r.Post("/", formsHandler.CreateForm)
				r.Get("/{formID}", formsHandler.GetForm)
				r.Put("/{formID}", formsHandler.UpdateForm)
				r.Delete("/{formID}", formsHandler.DeleteForm)
				r.Get("/{formID}/responses", formsHandler.ListResponses)
			})
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			// 应用认证中间件
			r.Use(customMiddleware.AuthMiddleware(cfg))

			// 工作区管理路由
			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspacesHandler.ListMyWorkspaces)
				r.Post("/", workspacesHandler.CreateWorkspace)
				r.Post("/join", workspacesHandler.JoinWorkspace) // expects ?token=
				r.Get("/{workspaceID}", workspacesHandler.GetWorkspace)
				r.Delete("/{workspaceID}", workspacesHandler.DeleteWorkspace)
				r.Post("/{workspaceID}/share", workspacesHandler.ShareWorkspace)
				r.Post("/{workspaceID}/share-link", workspacesHandler.GenerateShareLink)
			})

			// 文件夹管理路由
			r.Route("/folders", func(r chi.Router) {
				r.Get("/", foldersHandler.ListFolders) // expects ?workspace_id=
				r.Post("/", foldersHandler.CreateFolder)
				r.Get("/{folderID}", foldersHandler.GetFolder)
				r.Delete("/{folderID}", foldersHandler.DeleteFolder)
			})
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
