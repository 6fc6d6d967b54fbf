package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"washday/api/middleware"
)

// NewRouter wires every endpoint of the API.
func NewRouter(analyticsHandlers *AnalyticsHandlers, serviceHandlers *ServiceHandlers, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		// Public catalog, fetched once per page session by the site.
		api.GET("/services", serviceHandlers.ListServices)
		api.GET("/services/:slug", serviceHandlers.GetService)

		collector := api.Group("/")
		collector.Use(middleware.CollectorKey(), middleware.OptionalActor())
		{
			collector.POST("/track", analyticsHandlers.TrackEvent)

			statsGroup := collector.Group("/stats")
			{
				statsGroup.GET("/event-counts", analyticsHandlers.GetEventCountsOverTime)
				statsGroup.GET("/scroll-depth", analyticsHandlers.GetScrollDepth)
				statsGroup.GET("/section-views", analyticsHandlers.GetSectionViews)
				statsGroup.GET("/top-paths", analyticsHandlers.GetTopNPagePaths)
			}
		}
	}

	return r
}
