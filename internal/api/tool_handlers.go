package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
)

type ToolActivateRequest struct {
	ToolName string            `json:"tool_name" binding:"required"`
	ToolType string            `json:"tool_type"`
	Settings map[string]string `json:"settings,omitempty"`
}

// PostToolActivate records the acquisition timestamp for a tool view and
// hands back the activation id the client must release.
func PostToolActivate(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		var body ToolActivateRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		activation := app.Tools().Activate(user, body.ToolName, body.ToolType, body.Settings)
		c.JSON(http.StatusCreated, activation)
	}
}

// PostToolRelease closes the activation. Always 200: usage tracking is
// best-effort telemetry and a discarded or failed write is not the client's
// problem. meta.recorded says whether a row was persisted.
func PostToolRelease(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		event := app.Tools().Release(c.Request.Context(), c.Param("id"))
		meta := map[string]any{"recorded": event != nil}
		HandleSuccess(c, app.Logger(), event, meta)
	}
}

func GetToolUsage(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		events, err := app.Tools().ListUsage(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch tool usage")
			return
		}
		HandleSuccess(c, app.Logger(), events, nil)
	}
}
