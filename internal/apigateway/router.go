package apigateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yfyeung/icefall-utils/internal/auth"
	"github.com/yfyeung/icefall-utils/internal/jobmanagement"
)

// SetupRouter initializes the Gin router serving the latest sweep's reports.
// Read-only routes are public; re-running the sweep requires adminToken.
func SetupRouter(svc *jobmanagement.SweepService, adminToken string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", auth.LoginHandler(adminToken))
		authRoutes.POST("/logout", auth.LogoutHandler)
	}

	h := jobmanagement.NewHandlers(svc)

	apiRoutes := router.Group("/api")
	{
		apiRoutes.GET("/sweep", h.GetSweepHandler)
		apiRoutes.GET("/missed", h.GetMissedHandler)

		experimentRoutes := apiRoutes.Group("/experiments")
		{
			experimentRoutes.GET("", h.ListExperimentsHandler)
			experimentRoutes.GET("/:name/report", h.GetReportHandler)
		}

		apiRoutes.GET("/runs/:id/reports/:name", h.GetStoredReportHandler)
	}

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(auth.AuthMiddleware(adminToken))
	{
		adminRoutes.POST("/sweep/run", h.RunSweepHandler)
	}

	return router
}
