package app

import (
	"fitcoach_backend/docs"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/middleware"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret, repos.user))
	{
		authGroup.POST("/auth/logout", c.auth.Logout)

		a.registerUserRoutes(authGroup, c)
		a.registerChallengeRoutes(authGroup, c)
		a.registerCheckInRoutes(authGroup, c)

		// 3. 教练 AI 接口
		a.registerCoachRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
		public.POST("/auth/refresh-token", c.auth.RefreshToken)
	}
}

func (a *App) registerUserRoutes(rg *gin.RouterGroup, c *controllers) {
	users := rg.Group("/users")
	{
		users.GET("/profile", c.user.GetProfile)
		users.PATCH("/profile", c.user.UpdateProfile)
		users.POST("/change-password", c.user.ChangePassword)
		users.GET("/clients/:id/progress", middleware.RoleMiddleware(model.Coach), c.user.GetClientProgress)
	}
}

func (a *App) registerChallengeRoutes(rg *gin.RouterGroup, c *controllers) {
	coachOnly := middleware.RoleMiddleware(model.Coach)

	challenges := rg.Group("/challenges")
	{
		challenges.GET("", c.challenge.GetChallenges)
		challenges.GET("/:id", c.challenge.GetChallenge)
		challenges.POST("", coachOnly, c.challenge.CreateChallenge)
		challenges.PATCH("/:id", coachOnly, c.challenge.UpdateChallenge)
		challenges.DELETE("/:id", coachOnly, c.challenge.DeleteChallenge)
		challenges.GET("/:id/participants", coachOnly, c.challenge.GetParticipants)
		challenges.POST("/:id/join", middleware.RoleMiddleware(model.Client), c.challenge.JoinChallenge)
	}
}

func (a *App) registerCheckInRoutes(rg *gin.RouterGroup, c *controllers) {
	checkIns := rg.Group("/check-ins")
	{
		checkIns.POST("", c.checkIn.SubmitCheckIn)
		checkIns.GET("/history/:challengeId", c.checkIn.GetCheckInHistory)
		checkIns.GET("/analysis/:checkInId", c.checkIn.GetCheckInAnalysis)
	}
}

func (a *App) registerCoachRoutes(rg *gin.RouterGroup, c *controllers) {
	ai := rg.Group("/ai")
	ai.Use(middleware.RoleMiddleware(model.Coach))
	{
		ai.POST("/analyze/:checkInId", c.ai.AnalyzeCheckIn)
		ai.GET("/history/:clientId", c.ai.GetAnalysisHistory)
		ai.POST("/regenerate/:analysisId", c.ai.RegenerateAnalysis)
	}
}
