package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/service"
)

func PostSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		var body service.StartSessionRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		session, err := service.StartSession(c.Request.Context(), app.SessionRepo(), user, &body)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to start session")
			return
		}

		c.JSON(http.StatusCreated, session)
	}
}

func PostSessionComplete(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.CompleteSessionRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		result, err := service.CompleteSession(c.Request.Context(), app.SessionRepo(), c.Param("id"), &body)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to complete session")
			return
		}
		respondTransition(c, app, result)
	}
}

func PostSessionCancel(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.CancelSessionRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		result, err := service.CancelSession(c.Request.Context(), app.SessionRepo(), c.Param("id"), &body)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to cancel session")
			return
		}
		respondTransition(c, app, result)
	}
}

func PostSessionSkip(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.SkipSessionRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		result, err := service.SkipSession(c.Request.Context(), app.SessionRepo(), c.Param("id"), &body)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to skip session")
			return
		}
		respondTransition(c, app, result)
	}
}

func GetSessions(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		sessions, err := service.ListSessions(c.Request.Context(), app.SessionRepo(), user)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch sessions")
			return
		}
		HandleSuccess(c, app.Logger(), sessions, nil)
	}
}

func respondTransition(c *gin.Context, app App, result *service.SessionResult) {
	var meta map[string]any
	if result.NoOp {
		meta = map[string]any{"no_op": true}
	}
	HandleSuccess(c, app.Logger(), result.Session, meta)
}
