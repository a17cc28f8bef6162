package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

// TimeRange is a half-open [From, To) filter; nil bounds are unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

func (r TimeRange) Validate() error {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return internal.NewValidationError("time_range", "'from' must be before 'to'")
	}
	return nil
}

type metricsCacheKey struct {
	userID string
	from   string
	to     string
}

func cacheKey(userID string, rng TimeRange) metricsCacheKey {
	key := metricsCacheKey{userID: userID}
	if rng.From != nil {
		key.from = rng.From.UTC().Format(time.RFC3339Nano)
	}
	if rng.To != nil {
		key.to = rng.To.UTC().Format(time.RFC3339Nano)
	}
	return key
}

type CreateMetricRequest struct {
	PhysicalScore  int        `json:"physical_score" validate:"required,gte=1,lte=10"`
	MentalScore    int        `json:"mental_score" validate:"required,gte=1,lte=10"`
	EmotionalScore int        `json:"emotional_score" validate:"required,gte=1,lte=10"`
	SleepScore     int        `json:"sleep_score" validate:"required,gte=1,lte=10"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
}

type MetricsSummary struct {
	Count        int     `json:"count"`
	AvgPhysical  float64 `json:"avg_physical"`
	AvgMental    float64 `json:"avg_mental"`
	AvgEmotional float64 `json:"avg_emotional"`
	AvgSleep     float64 `json:"avg_sleep"`
}

// MetricsService reads and appends energy metrics. The cache is a process
// local read-through accelerator keyed (user, range); writes invalidate all
// of the user's entries, there is no background refresh.
type MetricsService struct {
	repo   storage.MetricRepository
	logger internal.Logger
	mu     sync.RWMutex
	cache  map[metricsCacheKey][]internal.EnergyMetric

	// gen counts invalidations per user. A cache fill is allowed only if no
	// invalidation happened while the store read was in flight, otherwise the
	// fetched rows may predate a write and pinning them would serve a stale
	// view until the next write.
	gen map[string]uint64
}

func NewMetricsService(repo storage.MetricRepository, logger internal.Logger) *MetricsService {
	return &MetricsService{
		repo:   repo,
		logger: logger,
		cache:  make(map[metricsCacheKey][]internal.EnergyMetric),
		gen:    make(map[string]uint64),
	}
}

// GetMetrics returns the user's metrics in the range, cached until the next
// write. A user with no rows gets an empty slice, never an error.
func (s *MetricsService) GetMetrics(ctx context.Context, user *internal.User, rng TimeRange) ([]internal.EnergyMetric, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(user.ID, rng)
	s.mu.RLock()
	cached, ok := s.cache[key]
	gen := s.gen[user.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	metrics, err := s.repo.ListMetrics(ctx, user.ID, rng.From, rng.To)
	if err != nil {
		return nil, internal.NewPersistenceError("list metrics", err)
	}
	if metrics == nil {
		metrics = []internal.EnergyMetric{}
	}

	s.mu.Lock()
	if s.gen[user.ID] == gen {
		s.cache[key] = metrics
	}
	s.mu.Unlock()
	return metrics, nil
}

// CreateMetric appends one immutable row. Either the row is persisted and
// the user's cached ranges are invalidated, or neither happens.
func (s *MetricsService) CreateMetric(ctx context.Context, user *internal.User, req *CreateMetricRequest) (*internal.EnergyMetric, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("metric", err.Error())
	}

	now := time.Now()
	recordedAt := now
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}
	metric := &internal.EnergyMetric{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		PhysicalScore:  req.PhysicalScore,
		MentalScore:    req.MentalScore,
		EmotionalScore: req.EmotionalScore,
		SleepScore:     req.SleepScore,
		RecordedAt:     recordedAt,
		CreatedAt:      now,
	}
	if err := s.repo.SaveMetric(ctx, metric); err != nil {
		return nil, internal.NewPersistenceError("save metric", err)
	}

	s.Invalidate(user.ID)
	return metric, nil
}

// Invalidate drops every cached range for the user and fences out cache
// fills from reads that fetched before this point.
func (s *MetricsService) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[userID]++
	for key := range s.cache {
		if key.userID == userID {
			delete(s.cache, key)
		}
	}
}

// Summarize computes per-score averages over a set of rows.
func Summarize(metrics []internal.EnergyMetric) MetricsSummary {
	summary := MetricsSummary{Count: len(metrics)}
	if len(metrics) == 0 {
		return summary
	}

	var physical, mental, emotional, sleep int
	for _, m := range metrics {
		physical += m.PhysicalScore
		mental += m.MentalScore
		emotional += m.EmotionalScore
		sleep += m.SleepScore
	}
	n := float64(len(metrics))
	summary.AvgPhysical = float64(physical) / n
	summary.AvgMental = float64(mental) / n
	summary.AvgEmotional = float64(emotional) / n
	summary.AvgSleep = float64(sleep) / n
	return summary
}
