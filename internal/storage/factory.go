package storage

import "github.com/yourname/focustracker/internal"

// Repositories bundles the record-store capabilities one backend provides.
type Repositories struct {
	Sessions     SessionRepository
	Metrics      MetricRepository
	ToolUsage    ToolUsageRepository
	Achievements AchievementFeed
}

func NewFileRepositories(sessionsFile, metricsFile, toolUsageFile string, logger internal.Logger) (*Repositories, *FileStorage, error) {
	store, err := NewFileStorage(sessionsFile, metricsFile, toolUsageFile, logger)
	if err != nil {
		return nil, nil, err
	}
	return &Repositories{Sessions: store, Metrics: store, ToolUsage: store, Achievements: store}, store, nil
}

func NewPostgresRepositories(dsn string, logger internal.Logger) (*Repositories, *PostgresStorage, error) {
	store, err := NewPostgresStorage(dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return &Repositories{Sessions: store, Metrics: store, ToolUsage: store, Achievements: store}, store, nil
}
