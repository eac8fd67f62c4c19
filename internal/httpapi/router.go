// Package httpapi exposes the server's diagnostic-only HTTP surface: the
// dispatcher's recent-operation ring buffer and the Prometheus metrics
// endpoint. It carries no operational routes of its own — every tool
// operation is reached through the stdio dispatch loop, not HTTP.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
	"github.com/devtab-sh/secure-dev-manager/internal/metrics"
)

const defaultRecentLimit = 50

// NewRouter builds the diagnostic gin.Engine. It runs in release mode: this
// endpoint is for local operator/developer inspection, not a public API.
func NewRouter(d *dispatch.Dispatcher) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	debugGroup := r.Group("/debug")
	{
		debugGroup.GET("/dispatch", recentDispatchHandler(d))
		debugGroup.GET("/healthz", healthzHandler)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func recentDispatchHandler(d *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultRecentLimit
		if q := c.Query("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				limit = n
			}
		}
		c.JSON(http.StatusOK, gin.H{"envelopes": d.RecentEnvelopes(limit)})
	}
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
