package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopdeskhq/shopdesk/internal/appstate"
)

func newAdminHandler(resources *appstate.Context, registry *prometheus.Registry) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, resources.SyncStatus())
	})
	router.GET("/healthz", func(ginContext *gin.Context) {
		ginContext.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return router
}
