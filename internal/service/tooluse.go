package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

// MinTrackedSeconds is the accidental-open threshold: activations released
// earlier than this are discarded, not persisted.
const MinTrackedSeconds = 5

// ToolActivation is one acquire/release pair for a tool view.
type ToolActivation struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	ToolName   string            `json:"tool_name"`
	ToolType   string            `json:"tool_type"`
	Settings   map[string]string `json:"settings,omitempty"`
	AcquiredAt time.Time         `json:"acquired_at"`
}

// ToolTracker measures wall-clock engagement per tool activation. Tracking
// is best-effort telemetry: a failed write is logged and swallowed, never
// surfaced to the tool flow.
type ToolTracker struct {
	repo   storage.ToolUsageRepository
	logger internal.Logger
	now    func() time.Time
	mu     sync.Mutex
	active map[string]*ToolActivation
}

func NewToolTracker(repo storage.ToolUsageRepository, logger internal.Logger) *ToolTracker {
	return &ToolTracker{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		active: make(map[string]*ToolActivation),
	}
}

// Activate records the acquisition timestamp for a tool view.
func (t *ToolTracker) Activate(user *internal.User, toolName, toolType string, settings map[string]string) *ToolActivation {
	activation := &ToolActivation{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ToolName:   toolName,
		ToolType:   toolType,
		Settings:   settings,
		AcquiredAt: t.now(),
	}
	t.mu.Lock()
	t.active[activation.ID] = activation
	t.mu.Unlock()
	return activation
}

// Release closes the activation and, when the engagement lasted at least
// MinTrackedSeconds, appends one usage row. Releasing an unknown or already
// released activation is a no-op, so retried releases write at most one row.
// The returned event is nil when nothing was persisted.
func (t *ToolTracker) Release(ctx context.Context, activationID string) *internal.ToolUsageEvent {
	t.mu.Lock()
	activation, ok := t.active[activationID]
	if ok {
		delete(t.active, activationID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}

	elapsed := int(t.now().Sub(activation.AcquiredAt).Round(time.Second) / time.Second)
	if elapsed < MinTrackedSeconds {
		t.logger.Debugf("discarding tool activation %s for %s: %ds below threshold", activation.ID, activation.ToolName, elapsed)
		return nil
	}

	event := &internal.ToolUsageEvent{
		ID:              uuid.NewString(),
		UserID:          activation.UserID,
		ToolName:        activation.ToolName,
		ToolType:        activation.ToolType,
		SessionDuration: elapsed,
		Settings:        activation.Settings,
		CreatedAt:       t.now(),
	}
	if err := t.repo.SaveToolUsage(ctx, event); err != nil {
		t.logger.Warnf("failed to record tool usage for %s: %v", activation.ToolName, err)
		return nil
	}
	return event
}

func (t *ToolTracker) ListUsage(ctx context.Context, user *internal.User) ([]internal.ToolUsageEvent, error) {
	events, err := t.repo.ListToolUsage(ctx, user.ID)
	if err != nil {
		return nil, internal.NewPersistenceError("list tool usage", err)
	}
	return events, nil
}

// ActiveCount reports how many activations have not been released yet.
func (t *ToolTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
