package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(a.Started).String(),
			"node_id":  a.NodeID,
			"sessions": a.tracker.Len(),
			"version":  Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := a.router.Group("/sessions")
	if a.auth != nil {
		sessions.Use(requireToken(a.auth))
	}
	sessions.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": a.tracker.List(),
		})
	})

	sessions.GET("/:id", func(c *gin.Context) {
		info, ok := a.tracker.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, info)
	})
}
