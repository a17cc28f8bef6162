package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/service"
)

func GetMetrics(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		rng, err := parseTimeRange(c)
		if err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid time range")
			return
		}

		metrics, err := app.Metrics().GetMetrics(c.Request.Context(), user, rng)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch metrics")
			return
		}

		summary := service.Summarize(metrics)
		meta := map[string]any{"summary": summary}
		HandleSuccess(c, app.Logger(), metrics, meta)
	}
}

func PostMetric(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		var body service.CreateMetricRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		metric, err := app.Metrics().CreateMetric(c.Request.Context(), user, &body)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to save metric")
			return
		}

		c.JSON(http.StatusCreated, metric)
	}
}

func parseTimeRange(c *gin.Context) (service.TimeRange, error) {
	var rng service.TimeRange
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return rng, internal.NewValidationError("from", "must be RFC3339")
		}
		rng.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return rng, internal.NewValidationError("to", "must be RFC3339")
		}
		rng.To = &t
	}
	return rng, rng.Validate()
}
