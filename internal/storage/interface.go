package storage

import (
	"context"
	"time"

	"github.com/yourname/focustracker/internal"
)

type SessionRepository interface {
	SaveSession(ctx context.Context, session *internal.Session) error
	GetSession(ctx context.Context, id string) (*internal.Session, error)
	// UpdateSession is used only for the terminal transition.
	UpdateSession(ctx context.Context, session *internal.Session) error
	ListSessions(ctx context.Context, userID string) ([]internal.Session, error)
}

type MetricRepository interface {
	SaveMetric(ctx context.Context, metric *internal.EnergyMetric) error
	// ListMetrics filters to [from, to) when the bounds are non-nil.
	ListMetrics(ctx context.Context, userID string, from, to *time.Time) ([]internal.EnergyMetric, error)
}

type ToolUsageRepository interface {
	SaveToolUsage(ctx context.Context, event *internal.ToolUsageEvent) error
	ListToolUsage(ctx context.Context, userID string) ([]internal.ToolUsageEvent, error)
}

// AchievementFeed is the change-feed capability: insert events on the
// achievement_progress relation, filtered to one user.
type AchievementFeed interface {
	SubscribeAchievements(ctx context.Context, userID string) (*Subscription, error)
}
