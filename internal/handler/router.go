package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/optifire/inspection-api/internal/middleware"
	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/internal/service"
	"github.com/optifire/inspection-api/pkg/config"
	"github.com/optifire/inspection-api/pkg/logger"
	corsmiddleware "github.com/optifire/inspection-api/pkg/middleware/cors"
	reqidmiddleware "github.com/optifire/inspection-api/pkg/middleware/requestid"
	"go.uber.org/zap"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Config        *config.Config
	Logger        *zap.Logger
	AuthService   *service.AuthService
	Metrics       *service.MetricsService
	Auth          *AuthHandler
	Requests      *RequestHandler
	Orders        *OrderHandler
	Templates     *TemplateHandler
	Notifications *NotificationHandler
	Users         *UserHandler
}

// NewRouter assembles the gin engine with middleware and all route groups.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
		auth.POST("/forgot-password", deps.Auth.ForgotPassword)

		authed := auth.Group("", middleware.JWT(deps.AuthService))
		authed.POST("/logout", deps.Auth.Logout)
		authed.POST("/change-password", deps.Auth.ChangePassword)
	}

	requests := api.Group("/requests", middleware.JWT(deps.AuthService))
	{
		requests.POST("", middleware.RequireRoles(models.RoleClient), deps.Requests.Create)
		requests.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleClient), deps.Requests.List)
		requests.GET("/export", middleware.RequireRoles(models.RoleAdmin), deps.Requests.Export)
		requests.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleClient), deps.Requests.Get)
		requests.POST("/:id/quote", middleware.RequireRoles(models.RoleAdmin), deps.Requests.Quote)
		requests.POST("/:id/reject", middleware.RequireRoles(models.RoleAdmin), deps.Requests.Reject)
		requests.POST("/:id/accept", middleware.RequireRoles(models.RoleClient), deps.Requests.AcceptQuote)
		requests.POST("/:id/reject-quote", middleware.RequireRoles(models.RoleClient), deps.Requests.RejectQuote)
		requests.POST("/:id/annul", middleware.RequireRoles(models.RoleClient), deps.Requests.Annul)
	}

	orders := api.Group("/orders", middleware.JWT(deps.AuthService))
	{
		orders.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTechnician), deps.Orders.List)
		orders.GET("/:id", deps.Orders.Get)
		orders.PUT("/:id/progress", middleware.RequireRoles(models.RoleTechnician), deps.Orders.SaveProgress)
		orders.POST("/:id/finish", middleware.RequireRoles(models.RoleTechnician), deps.Orders.Finish)
		orders.POST("/:id/tasks/:taskId/evidence", middleware.RequireRoles(models.RoleTechnician), deps.Orders.AttachEvidence)
		orders.GET("/:id/report", deps.Orders.ReportLink)
	}

	// Signed token downloads: the token itself carries the authorization.
	api.GET("/downloads/reports/:token", deps.Orders.DownloadReport)

	templates := api.Group("/templates", middleware.JWT(deps.AuthService), middleware.RequireRoles(models.RoleAdmin))
	{
		templates.POST("", deps.Templates.Create)
		templates.GET("", deps.Templates.List)
		templates.GET("/:id", deps.Templates.Get)
		templates.PUT("/:id", deps.Templates.Update)
		templates.DELETE("/:id", deps.Templates.Delete)
	}

	notifications := api.Group("/notifications", middleware.JWT(deps.AuthService))
	{
		notifications.GET("", deps.Notifications.List)
		notifications.GET("/unread-count", deps.Notifications.CountUnread)
		notifications.POST("/read", deps.Notifications.MarkRead)
	}

	users := api.Group("/users", middleware.JWT(deps.AuthService))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), deps.Users.List)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), deps.Users.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), deps.Users.Get)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), deps.Users.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), deps.Users.Delete)
	}

	return r
}
