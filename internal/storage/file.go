package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
)

type FileStorage struct {
	sessions         map[string]*internal.Session          // id -> Session
	userSessionIndex map[string][]*internal.Session        // userID -> sessions (sorted descending by StartTime)
	metrics          map[string]*internal.EnergyMetric     // id -> EnergyMetric
	userMetricIndex  map[string][]*internal.EnergyMetric   // userID -> metrics (sorted ascending by RecordedAt)
	toolUsage        map[string]*internal.ToolUsageEvent   // id -> ToolUsageEvent
	userToolIndex    map[string][]*internal.ToolUsageEvent // userID -> usage events
	subscribers      map[string]*feedSubscriber            // subscription id -> subscriber
	mu               sync.RWMutex
	sessionsFile     string
	metricsFile      string
	toolUsageFile    string
	saveSessionsChan chan struct{}
	saveMetricsChan  chan struct{}
	saveToolChan     chan struct{}
	shutdownChan     chan struct{}
	saveDelay        time.Duration
	logger           internal.Logger
}

type feedSubscriber struct {
	userID string
	sub    *Subscription
}

func NewFileStorage(sessionsFile, metricsFile, toolUsageFile string, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		sessions:         make(map[string]*internal.Session),
		userSessionIndex: make(map[string][]*internal.Session),
		metrics:          make(map[string]*internal.EnergyMetric),
		userMetricIndex:  make(map[string][]*internal.EnergyMetric),
		toolUsage:        make(map[string]*internal.ToolUsageEvent),
		userToolIndex:    make(map[string][]*internal.ToolUsageEvent),
		subscribers:      make(map[string]*feedSubscriber),
		sessionsFile:     sessionsFile,
		metricsFile:      metricsFile,
		toolUsageFile:    toolUsageFile,
		saveSessionsChan: make(chan struct{}, 1),
		saveMetricsChan:  make(chan struct{}, 1),
		saveToolChan:     make(chan struct{}, 1),
		shutdownChan:     make(chan struct{}),
		saveDelay:        500 * time.Millisecond,
		logger:           logger,
	}

	if err := s.loadSessions(); err != nil {
		logger.Errorf("storage: failed to load sessions: %v", err)
		return nil, err
	}
	if err := s.loadMetrics(); err != nil {
		logger.Errorf("storage: failed to load energy metrics: %v", err)
		return nil, err
	}
	if err := s.loadToolUsage(); err != nil {
		logger.Errorf("storage: failed to load tool usage logs: %v", err)
		return nil, err
	}

	go s.saveWorker(s.saveSessionsChan, s.saveSessions, "sessions")
	go s.saveWorker(s.saveMetricsChan, s.saveMetrics, "energy metrics")
	go s.saveWorker(s.saveToolChan, s.saveToolUsage, "tool usage logs")

	return s, nil
}

// --- SessionRepository ---

func (s *FileStorage) SaveSession(ctx context.Context, session *internal.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	cp := *session
	s.sessions[cp.ID] = &cp

	sessions := s.userSessionIndex[cp.UserID]
	inserted := false
	for i, existing := range sessions {
		if existing.StartTime.Before(cp.StartTime) {
			sessions = append(sessions[:i], append([]*internal.Session{&cp}, sessions[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		sessions = append(sessions, &cp)
	}
	s.userSessionIndex[cp.UserID] = sessions

	s.signal(s.saveSessionsChan)
	return nil
}

func (s *FileStorage) GetSession(ctx context.Context, id string) (*internal.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, internal.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *FileStorage) UpdateSession(ctx context.Context, session *internal.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[session.ID]
	if !ok {
		return internal.ErrSessionNotFound
	}
	*existing = *session

	s.signal(s.saveSessionsChan)
	return nil
}

func (s *FileStorage) ListSessions(ctx context.Context, userID string) ([]internal.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ptrs, ok := s.userSessionIndex[userID]
	if !ok {
		return []internal.Session{}, nil
	}
	sessions := make([]internal.Session, len(ptrs))
	for i, p := range ptrs {
		sessions[i] = *p
	}
	return sessions, nil
}

// --- MetricRepository ---

func (s *FileStorage) SaveMetric(ctx context.Context, metric *internal.EnergyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *metric
	s.metrics[cp.ID] = &cp
	s.userMetricIndex[cp.UserID] = append(s.userMetricIndex[cp.UserID], &cp)
	sort.Slice(s.userMetricIndex[cp.UserID], func(i, j int) bool {
		return s.userMetricIndex[cp.UserID][i].RecordedAt.Before(s.userMetricIndex[cp.UserID][j].RecordedAt)
	})

	s.signal(s.saveMetricsChan)
	return nil
}

func (s *FileStorage) ListMetrics(ctx context.Context, userID string, from, to *time.Time) ([]internal.EnergyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ptrs, ok := s.userMetricIndex[userID]
	if !ok {
		return []internal.EnergyMetric{}, nil
	}
	metrics := make([]internal.EnergyMetric, 0, len(ptrs))
	for _, m := range ptrs {
		if from != nil && m.RecordedAt.Before(*from) {
			continue
		}
		if to != nil && !m.RecordedAt.Before(*to) {
			continue
		}
		metrics = append(metrics, *m)
	}
	return metrics, nil
}

// --- ToolUsageRepository ---

func (s *FileStorage) SaveToolUsage(ctx context.Context, event *internal.ToolUsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.toolUsage[cp.ID] = &cp
	s.userToolIndex[cp.UserID] = append(s.userToolIndex[cp.UserID], &cp)

	s.signal(s.saveToolChan)
	return nil
}

func (s *FileStorage) ListToolUsage(ctx context.Context, userID string) ([]internal.ToolUsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ptrs, ok := s.userToolIndex[userID]
	if !ok {
		return []internal.ToolUsageEvent{}, nil
	}
	events := make([]internal.ToolUsageEvent, len(ptrs))
	for i, p := range ptrs {
		events[i] = *p
	}
	return events, nil
}

// --- AchievementFeed ---

func (s *FileStorage) SubscribeAchievements(ctx context.Context, userID string) (*Subscription, error) {
	id := uuid.NewString()
	sub := NewSubscription(16, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.subscribers[id] = &feedSubscriber{userID: userID, sub: sub}
	s.mu.Unlock()

	return sub, nil
}

// InsertAchievementProgress records a server-computed progress row and fans
// it out to matching subscribers. Achievement rows are held in memory only;
// they are owned by the awarding side, not the client cache.
func (s *FileStorage) InsertAchievementProgress(ctx context.Context, ev *internal.AchievementProgressEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	s.mu.RLock()
	subs := make([]*feedSubscriber, 0, len(s.subscribers))
	for _, fs := range s.subscribers {
		if fs.userID == ev.UserID {
			subs = append(subs, fs)
		}
	}
	s.mu.RUnlock()

	for _, fs := range subs {
		fs.sub.Publish(*ev)
	}
	return nil
}

// --- Persistence ---

func (s *FileStorage) loadSessions() error {
	var sessions []*internal.Session
	if err := readFileJSON(s.sessionsFile, &sessions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
		s.userSessionIndex[sess.UserID] = append(s.userSessionIndex[sess.UserID], sess)
	}
	for userID := range s.userSessionIndex {
		sort.Slice(s.userSessionIndex[userID], func(i, j int) bool {
			return s.userSessionIndex[userID][i].StartTime.After(s.userSessionIndex[userID][j].StartTime)
		})
	}
	return nil
}

func (s *FileStorage) loadMetrics() error {
	var metrics []*internal.EnergyMetric
	if err := readFileJSON(s.metricsFile, &metrics); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		s.metrics[m.ID] = m
		s.userMetricIndex[m.UserID] = append(s.userMetricIndex[m.UserID], m)
	}
	for userID := range s.userMetricIndex {
		sort.Slice(s.userMetricIndex[userID], func(i, j int) bool {
			return s.userMetricIndex[userID][i].RecordedAt.Before(s.userMetricIndex[userID][j].RecordedAt)
		})
	}
	return nil
}

func (s *FileStorage) loadToolUsage() error {
	var events []*internal.ToolUsageEvent
	if err := readFileJSON(s.toolUsageFile, &events); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.toolUsage[ev.ID] = ev
		s.userToolIndex[ev.UserID] = append(s.userToolIndex[ev.UserID], ev)
	}
	return nil
}

func readFileJSON(filePath string, out interface{}) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveSessions() error {
	s.mu.RLock()
	sessions := make([]*internal.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.sessionsFile, sessions)
}

func (s *FileStorage) saveMetrics() error {
	s.mu.RLock()
	metrics := make([]*internal.EnergyMetric, 0, len(s.metrics))
	for _, m := range s.metrics {
		metrics = append(metrics, m)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.metricsFile, metrics)
}

func (s *FileStorage) saveToolUsage() error {
	s.mu.RLock()
	events := make([]*internal.ToolUsageEvent, 0, len(s.toolUsage))
	for _, ev := range s.toolUsage {
		events = append(events, ev)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.toolUsageFile, events)
}

func (s *FileStorage) saveWorker(kick chan struct{}, save func() error, what string) {
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-kick:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := save(); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", what, err)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

// Signal the save worker (non-blocking)
func (s *FileStorage) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Close storage and stop background workers gracefully
func (s *FileStorage) Close() error {
	close(s.shutdownChan)

	if err := s.saveSessions(); err != nil {
		return err
	}
	if err := s.saveMetrics(); err != nil {
		return err
	}
	return s.saveToolUsage()
}

// --- Compile-time assertions ---
var _ SessionRepository = (*FileStorage)(nil)
var _ MetricRepository = (*FileStorage)(nil)
var _ ToolUsageRepository = (*FileStorage)(nil)
var _ AchievementFeed = (*FileStorage)(nil)
