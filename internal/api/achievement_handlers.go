package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/notify"
)

// PostAchievementAttach opens the app-level achievement subscription for
// the authenticated user. Attaching twice for the same user is a no-op;
// attaching while another user's subscription is live is a conflict.
func PostAchievementAttach(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		if err := app.Notifier().Attach(user.ID); err != nil {
			HandleError(c, app.Logger(), err, 409, "Failed to attach notifications")
			return
		}
		HandleSuccess(c, app.Logger(), nil, map[string]any{"attached": user.ID})
	}
}

func PostAchievementDetach(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		app.Notifier().Detach()
		HandleSuccess(c, app.Logger(), nil, map[string]any{"attached": false})
	}
}

// sseSink forwards toasts into the SSE stream's channel. Drops when the
// stream is not draining; delivery is best-effort.
type sseSink struct {
	ch chan internal.AchievementProgressEvent
}

func (s *sseSink) Show(ev internal.AchievementProgressEvent) {
	select {
	case s.ch <- ev:
	default:
	}
}

// StreamAchievements serves achievement toasts as server-sent events. The
// subscription is scoped to the request: attached here, detached when the
// client disconnects.
func StreamAchievements(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		sink := &sseSink{ch: make(chan internal.AchievementProgressEvent, 16)}
		notifier := notify.NewNotifier(app.AchievementFeed(), sink, app.Logger())
		if err := notifier.Attach(user.ID); err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to subscribe")
			return
		}
		defer notifier.Detach()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.WriteHeader(http.StatusOK)

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case ev := <-sink.ch:
				c.SSEvent("achievement", ev)
				return true
			}
		})
	}
}
