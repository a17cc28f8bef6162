package api

import (
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/notify"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
)

type App interface {
	Logger() internal.Logger
	SessionRepo() storage.SessionRepository
	Metrics() *service.MetricsService
	Tools() *service.ToolTracker
	AchievementFeed() storage.AchievementFeed
	Notifier() *notify.Notifier
}
