package app

import (
	"lms_backend/docs"
	"lms_backend/internal/config"
	"lms_backend/internal/middleware"
	"lms_backend/internal/model"
	"lms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.Profile)

		authGroup.GET("/notifications", c.notification.List)
		authGroup.POST("/notifications/:id/read", c.notification.MarkRead)

		// 讲师：提交课程评估与查看自己的评估
		instructor := authGroup.Group("/")
		instructor.Use(middleware.RoleMiddleware(model.Instructor))
		{
			instructor.POST("/evaluations", c.evaluation.Submit)
		}
		authGroup.GET("/evaluations/:id", c.evaluation.Get)
		authGroup.GET("/courses/:id/evaluation", c.evaluation.LatestForCourse)

		// 审核人：我的任务与提交评审
		reviewer := authGroup.Group("/approvals")
		reviewer.Use(middleware.RoleMiddleware(model.Reviewer))
		{
			reviewer.GET("/assigned", c.approval.ListMine)
			reviewer.POST("/:id/reviews", c.approval.SubmitReview)
		}
	}

	// 管理员路由
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/evaluations", c.evaluation.List)
		admin.GET("/evaluations/pending", c.evaluation.ListPending)
		admin.GET("/evaluations/stats", c.evaluation.Stats)
		admin.POST("/evaluations/:id/review", c.evaluation.AdminReview)
		admin.POST("/evaluations/:id/retry", c.evaluation.Retry)
		admin.POST("/evaluations/bulk-approve", c.evaluation.BulkApprove)

		admin.GET("/approvals", c.approval.List)
		admin.GET("/approvals/dashboard", c.approval.Dashboard)
		admin.GET("/approvals/:id", c.approval.Get)
		admin.POST("/approvals/:id/assign", c.approval.AssignReviewer)
		admin.POST("/approvals/:id/decision", c.approval.Decide)

		admin.GET("/settings", c.settings.Get)
		admin.PUT("/settings", c.settings.Update)
		admin.GET("/settings/auto-approval/stats", c.settings.AutoApprovalStats)
	}
}
