package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels admin requests no route handled, so stray paths do
// not grow the metric label set.
const UnmatchedRoute = "unmatched"

// Routes polled by orchestrator health checks and scrapers. Successful hits log at
// trace so a steady poll does not bury the session log.
var pollRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return UnmatchedRoute
}

// AdminAccessLog writes one line per admin request, tagged with the bot id.
// Auth rejections and unknown routes surface as warnings.
func AdminAccessLog(logger zerolog.Logger, botID string) gin.HandlerFunc {
	logger = logger.With().Str("component", "admin").Str("bot", botID).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case pollRoutes[route]:
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msgf("admin.Server.request %s %s", c.Request.Method, route)
	}
}

// AdminMetrics counts admin requests and their latency by route template.
func AdminMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}
