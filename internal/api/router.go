package api

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the engine's entry points. All routes require an
// authenticated user.
func RegisterRoutes(r *gin.Engine, app App, authMW gin.HandlerFunc) {
	g := r.Group("/", authMW)

	g.POST("/sessions", PostSession(app))
	g.GET("/sessions", GetSessions(app))
	g.POST("/sessions/:id/complete", PostSessionComplete(app))
	g.POST("/sessions/:id/cancel", PostSessionCancel(app))
	g.POST("/sessions/:id/skip", PostSessionSkip(app))

	g.GET("/metrics", GetMetrics(app))
	g.POST("/metrics", PostMetric(app))

	g.POST("/tools/activations", PostToolActivate(app))
	g.POST("/tools/activations/:id/release", PostToolRelease(app))
	g.GET("/tools/usage", GetToolUsage(app))

	g.POST("/achievements/attach", PostAchievementAttach(app))
	g.POST("/achievements/detach", PostAchievementDetach(app))
	g.GET("/achievements/stream", StreamAchievements(app))
}
