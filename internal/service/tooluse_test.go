package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T) (*ToolTracker, *fakeClock, *storage.FileStorage) {
	store := newTestStorage(t)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	tracker := NewToolTracker(store, internal.NopLogger{})
	tracker.now = clock.Now
	return tracker, clock, store
}

func TestShortActivationDiscarded(t *testing.T) {
	tracker, clock, store := newTestTracker(t)
	ctx := context.Background()

	activation := tracker.Activate(testUser, "breathing", "relaxation", nil)
	clock.Advance(3 * time.Second)

	event := tracker.Release(ctx, activation.ID)
	assert.Nil(t, event)

	events, err := store.ListToolUsage(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLongActivationRecorded(t *testing.T) {
	tracker, clock, store := newTestTracker(t)
	ctx := context.Background()

	settings := map[string]string{"pattern": "4-7-8"}
	activation := tracker.Activate(testUser, "breathing", "relaxation", settings)
	clock.Advance(10 * time.Second)

	event := tracker.Release(ctx, activation.ID)
	require.NotNil(t, event)
	assert.Equal(t, 10, event.SessionDuration)
	assert.Equal(t, "breathing", event.ToolName)
	assert.Equal(t, settings, event.Settings)

	events, err := store.ListToolUsage(ctx, testUser.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 10, events[0].SessionDuration)
}

func TestThresholdBoundary(t *testing.T) {
	tracker, clock, store := newTestTracker(t)
	ctx := context.Background()

	activation := tracker.Activate(testUser, "timer", "focus", nil)
	clock.Advance(MinTrackedSeconds * time.Second)

	event := tracker.Release(ctx, activation.ID)
	require.NotNil(t, event)
	assert.Equal(t, MinTrackedSeconds, event.SessionDuration)

	events, err := store.ListToolUsage(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReleaseIsIdempotent(t *testing.T) {
	tracker, clock, store := newTestTracker(t)
	ctx := context.Background()

	activation := tracker.Activate(testUser, "timer", "focus", nil)
	clock.Advance(30 * time.Second)

	require.NotNil(t, tracker.Release(ctx, activation.ID))
	assert.Nil(t, tracker.Release(ctx, activation.ID))
	assert.Nil(t, tracker.Release(ctx, "unknown"))

	events, err := store.ListToolUsage(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 0, tracker.ActiveCount())
}

type failingToolRepo struct{}

func (failingToolRepo) SaveToolUsage(ctx context.Context, ev *internal.ToolUsageEvent) error {
	return errors.New("store unavailable")
}

func (failingToolRepo) ListToolUsage(ctx context.Context, userID string) ([]internal.ToolUsageEvent, error) {
	return nil, errors.New("store unavailable")
}

func TestSubmissionFailureSwallowed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	tracker := NewToolTracker(failingToolRepo{}, internal.NopLogger{})
	tracker.now = clock.Now

	activation := tracker.Activate(testUser, "timer", "focus", nil)
	clock.Advance(time.Minute)

	// Telemetry must never fail the user flow.
	event := tracker.Release(context.Background(), activation.ID)
	assert.Nil(t, event)
}
