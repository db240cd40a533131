// Package api assembles the gin router for the ingestion service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grantpipe/grant-ingestor/internal/handlers"
	"github.com/grantpipe/grant-ingestor/internal/logger"
)

const corsMaxAgeHours = 12

// Deps are the collaborators the router's handlers need.
type Deps struct {
	Sync    *handlers.SyncHandler
	Jobs    *handlers.JobHandler
	Sources *handlers.SourceHandler
	Grants  *handlers.GrantHandler

	AllowOrigins []string
	Metrics      prometheus.Gatherer
	Logger       logger.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()

	// CORS middleware - must be first
	router.Use(cors.New(cors.Config{
		AllowOrigins: deps.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"X-CSRF-Token", "Authorization", "accept", "origin",
			"Cache-Control", "X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	}))

	router.Use(ginLogger(deps.Logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	syncGroup := v1.Group("/sync")
	syncGroup.POST("/run", deps.Sync.RunAll)
	syncGroup.POST("/sources/:key", deps.Sync.RunSource)

	jobs := v1.Group("/jobs")
	jobs.GET("", deps.Jobs.List)
	jobs.GET("/:id", deps.Jobs.GetByID)

	sources := v1.Group("/sources")
	sources.GET("", deps.Sources.List)
	sources.GET("/:key", deps.Sources.GetByKey)

	grants := v1.Group("/grants")
	grants.GET("", deps.Grants.List)
	grants.POST("", deps.Grants.Create)
	grants.GET("/:id", deps.Grants.GetByID)
	grants.POST("/:id/duplicates", deps.Grants.FindDuplicates)
	grants.GET("/:id/duplicates", deps.Grants.ListDuplicates)

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", statusCode),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", duration),
		)
	}
}
