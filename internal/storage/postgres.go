package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourname/focustracker/internal"
)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(dsn string, logger internal.Logger) (*PostgresStorage, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	s := &PostgresStorage{pool: pool, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		logger.Errorf("failed to initialize schema: %v", err)
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (p *PostgresStorage) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			initial_mode TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			duration_seconds INTEGER,
			task_id TEXT,
			notes TEXT,
			focus_quality_rating INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON sessions (user_id, start_time DESC)`,
		`CREATE TABLE IF NOT EXISTS energy_metrics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			physical_score INTEGER NOT NULL,
			mental_score INTEGER NOT NULL,
			emotional_score INTEGER NOT NULL,
			sleep_score INTEGER NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_energy_metrics_user_recorded ON energy_metrics (user_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS tool_usage_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			tool_type TEXT NOT NULL,
			session_duration INTEGER NOT NULL,
			settings JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_progress (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			achievement_key TEXT NOT NULL,
			progress INTEGER NOT NULL,
			unlocked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE OR REPLACE FUNCTION notify_achievement_progress() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('achievement_progress', row_to_json(NEW)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS achievement_progress_notify ON achievement_progress`,
		`CREATE TRIGGER achievement_progress_notify
			AFTER INSERT ON achievement_progress
			FOR EACH ROW EXECUTE FUNCTION notify_achievement_progress()`,
	}
	for _, q := range queries {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// --- SessionRepository ---

func (p *PostgresStorage) SaveSession(ctx context.Context, s *internal.Session) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO sessions (id, user_id, initial_mode, status, start_time, end_time, duration_seconds, task_id, notes, focus_quality_rating, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.InitialMode, s.Status, s.StartTime, s.EndTime, s.DurationSeconds, s.TaskID, s.Notes, s.FocusQualityRating, s.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert session: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) GetSession(ctx context.Context, id string) (*internal.Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, user_id, initial_mode, status, start_time, end_time, duration_seconds, COALESCE(task_id, ''), COALESCE(notes, ''), focus_quality_rating, created_at FROM sessions WHERE id = $1`, id)
	var s internal.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.InitialMode, &s.Status, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.TaskID, &s.Notes, &s.FocusQualityRating, &s.CreatedAt); err != nil {
		return nil, mapSessionScanErr(err)
	}
	return &s, nil
}

// mapSessionScanErr keeps "no such row" distinct from query or connection
// failures, which must surface as retryable store errors rather than 404s.
func mapSessionScanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return internal.ErrSessionNotFound
	}
	return err
}

func (p *PostgresStorage) UpdateSession(ctx context.Context, s *internal.Session) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status = $2, end_time = $3, duration_seconds = $4, notes = $5, focus_quality_rating = $6 WHERE id = $1`,
		s.ID, s.Status, s.EndTime, s.DurationSeconds, s.Notes, s.FocusQualityRating)
	if err != nil {
		p.logger.Errorf("failed to update session: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStorage) ListSessions(ctx context.Context, userID string) ([]internal.Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, initial_mode, status, start_time, end_time, duration_seconds, COALESCE(task_id, ''), COALESCE(notes, ''), focus_quality_rating, created_at FROM sessions WHERE user_id = $1 ORDER BY start_time DESC`, userID)
	if err != nil {
		p.logger.Errorf("failed to query sessions: %v", err)
		return nil, err
	}
	defer rows.Close()

	sessions := []internal.Session{}
	for rows.Next() {
		var s internal.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.InitialMode, &s.Status, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.TaskID, &s.Notes, &s.FocusQualityRating, &s.CreatedAt); err != nil {
			p.logger.Errorf("failed to scan session: %v", err)
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// --- MetricRepository ---

func (p *PostgresStorage) SaveMetric(ctx context.Context, m *internal.EnergyMetric) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO energy_metrics (id, user_id, physical_score, mental_score, emotional_score, sleep_score, recorded_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.PhysicalScore, m.MentalScore, m.EmotionalScore, m.SleepScore, m.RecordedAt, m.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert energy metric: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) ListMetrics(ctx context.Context, userID string, from, to *time.Time) ([]internal.EnergyMetric, error) {
	query := `SELECT id, user_id, physical_score, mental_score, emotional_score, sleep_score, recorded_at, created_at FROM energy_metrics WHERE user_id = $1`
	args := []interface{}{userID}
	if from != nil {
		args = append(args, *from)
		query += ` AND recorded_at >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			query += ` AND recorded_at < $3`
		} else {
			query += ` AND recorded_at < $2`
		}
	}
	query += ` ORDER BY recorded_at`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		p.logger.Errorf("failed to query energy metrics: %v", err)
		return nil, err
	}
	defer rows.Close()

	metrics := []internal.EnergyMetric{}
	for rows.Next() {
		var m internal.EnergyMetric
		if err := rows.Scan(&m.ID, &m.UserID, &m.PhysicalScore, &m.MentalScore, &m.EmotionalScore, &m.SleepScore, &m.RecordedAt, &m.CreatedAt); err != nil {
			p.logger.Errorf("failed to scan energy metric: %v", err)
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// --- ToolUsageRepository ---

func (p *PostgresStorage) SaveToolUsage(ctx context.Context, ev *internal.ToolUsageEvent) error {
	var settings []byte
	if ev.Settings != nil {
		var err error
		settings, err = json.Marshal(ev.Settings)
		if err != nil {
			return err
		}
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO tool_usage_logs (id, user_id, tool_name, tool_type, session_duration, settings, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.UserID, ev.ToolName, ev.ToolType, ev.SessionDuration, settings, ev.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert tool usage event: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) ListToolUsage(ctx context.Context, userID string) ([]internal.ToolUsageEvent, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, tool_name, tool_type, session_duration, settings, created_at FROM tool_usage_logs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		p.logger.Errorf("failed to query tool usage logs: %v", err)
		return nil, err
	}
	defer rows.Close()

	events := []internal.ToolUsageEvent{}
	for rows.Next() {
		var ev internal.ToolUsageEvent
		var settings []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ToolName, &ev.ToolType, &ev.SessionDuration, &settings, &ev.CreatedAt); err != nil {
			p.logger.Errorf("failed to scan tool usage event: %v", err)
			return nil, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &ev.Settings); err != nil {
				p.logger.Warnf("malformed settings on tool usage %s: %v", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- AchievementFeed ---

// SubscribeAchievements holds a dedicated connection on LISTEN; the insert
// trigger publishes each achievement_progress row as JSON. Events for other
// users arrive on the same channel and are filtered out here.
func (p *PostgresStorage) SubscribeAchievements(ctx context.Context, userID string) (*Subscription, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		p.logger.Errorf("failed to acquire listen connection: %v", err)
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(ctx)
	if _, err := conn.Exec(listenCtx, `LISTEN achievement_progress`); err != nil {
		cancel()
		conn.Release()
		p.logger.Errorf("failed to LISTEN: %v", err)
		return nil, err
	}

	sub := NewSubscription(16, cancel)
	go func() {
		defer conn.Release()
		for {
			notification, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					sub.Fail(err)
				}
				return
			}
			var ev internal.AchievementProgressEvent
			if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
				p.logger.Warnf("malformed achievement_progress payload: %v", err)
				continue
			}
			if ev.UserID == userID {
				sub.Publish(ev)
			}
		}
	}()
	return sub, nil
}

// InsertAchievementProgress exists for the awarding side; the insert trigger
// does the NOTIFY.
func (p *PostgresStorage) InsertAchievementProgress(ctx context.Context, ev *internal.AchievementProgressEvent) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO achievement_progress (id, user_id, achievement_key, progress, unlocked, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.UserID, ev.AchievementKey, ev.Progress, ev.Unlocked, ev.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert achievement progress: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) Close() {
	p.pool.Close()
}

// --- Compile-time assertions ---
var _ SessionRepository = (*PostgresStorage)(nil)
var _ MetricRepository = (*PostgresStorage)(nil)
var _ ToolUsageRepository = (*PostgresStorage)(nil)
var _ AchievementFeed = (*PostgresStorage)(nil)
