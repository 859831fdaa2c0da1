package app

import (
	"safetrain_backend/docs"
	"safetrain_backend/internal/config"
	"safetrain_backend/internal/middleware"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/util"
	"safetrain_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	a.registerPublicRoutes(router, c)
	a.registerTraineeRoutes(router, c)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerOperatorRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/nationalities", func(ctx *gin.Context) {
			util.Success(ctx, util.Nationalities)
		})
	}
}

// Trainee routes are public by design: the scanned session token is
// the trainee's only credential and is checked by the verification
// service and the session aggregator, not by the auth middleware.
func (a *App) registerTraineeRoutes(router *gin.Engine, c *controllers) {
	verification := router.Group("/api/verification")
	{
		verification.POST("/start", c.verification.StartWorkflow)
		verification.POST("/evidence/:kind", c.verification.UploadEvidence)
		verification.POST("/:id/identity", c.verification.SubmitIdentity)
		verification.POST("/:id/selfie", c.verification.SubmitSelfie)
		verification.POST("/:id/signature", c.verification.SubmitSignature)
		verification.POST("/:id/consent", c.verification.SubmitConsent)
		verification.DELETE("/:id", c.verification.AbandonWorkflow)
	}
}

func (a *App) registerOperatorRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	operator := rg.Group("")
	operator.Use(middleware.RoleMiddleware(model.Operator))
	{
		operator.POST("/courses", c.course.CreateCourse)
		operator.GET("/courses", c.course.ListCourses)
		operator.GET("/courses/:id", c.course.GetCourse)
		operator.POST("/courses/:id/publish", c.course.PublishCourse)
		operator.GET("/courses/:id/versions/:version", c.course.GetCourseVersion)
		operator.POST("/courses/clips", c.course.UploadClip)

		operator.POST("/sessions", c.session.OpenSession)
		operator.GET("/sessions/:id", c.session.GetSession)
		operator.GET("/sessions/:id/stats", c.session.GetSessionStats)
		operator.POST("/sessions/:id/close", c.session.CloseSession)
		operator.GET("/sessions/:id/record", c.session.GetSessionRecord)
	}
}
