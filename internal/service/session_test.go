package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

func newTestStorage(t *testing.T) *storage.FileStorage {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStorage(
		filepath.Join(dir, "sessions.json"),
		filepath.Join(dir, "metrics.json"),
		filepath.Join(dir, "tool_usage.json"),
		internal.NopLogger{},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var testUser = &internal.User{ID: "u1", Name: "Test User"}

func intPtr(v int) *int { return &v }

func TestStartAndCompleteFocusSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus, TaskID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, internal.StatusActive, session.Status)
	assert.Equal(t, internal.ModeFocus, session.InitialMode)
	assert.Nil(t, session.EndTime)
	assert.Nil(t, session.DurationSeconds)

	end := session.StartTime.Add(1500 * time.Second)
	result, err := CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end, FocusQualityRating: intPtr(4)})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, internal.StatusCompleted, result.Session.Status)
	require.NotNil(t, result.Session.DurationSeconds)
	assert.Equal(t, 1500, *result.Session.DurationSeconds)
	require.NotNil(t, result.Session.FocusQualityRating)
	assert.Equal(t, 4, *result.Session.FocusQualityRating)

	stored, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusCompleted, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.True(t, stored.EndTime.Equal(end))
}

func TestTerminalStateIsAbsorbing(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus})
	require.NoError(t, err)

	end := session.StartTime.Add(60 * time.Second)
	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end})
	require.NoError(t, err)

	// A different terminal verb must be rejected and leave the row alone.
	_, err = CancelSession(ctx, store, session.ID, &CancelSessionRequest{EndTime: end})
	assert.ErrorIs(t, err, internal.ErrInvalidTransition)

	_, err = SkipSession(ctx, store, session.ID, &SkipSessionRequest{EndTime: end.Add(time.Second)})
	assert.ErrorIs(t, err, internal.ErrInvalidTransition)

	stored, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusCompleted, stored.Status)
	assert.Equal(t, 60, *stored.DurationSeconds)
}

func TestCompleteRetryIsNoOp(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus})
	require.NoError(t, err)

	end := session.StartTime.Add(300 * time.Second)
	req := &CompleteSessionRequest{EndTime: end, FocusQualityRating: intPtr(5)}

	first, err := CompleteSession(ctx, store, session.ID, req)
	require.NoError(t, err)
	assert.False(t, first.NoOp)

	// Identical retry after a network timeout: benign no-op.
	second, err := CompleteSession(ctx, store, session.ID, req)
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, *first.Session.DurationSeconds, *second.Session.DurationSeconds)

	// Same verb, different arguments: invalid transition.
	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end, FocusQualityRating: intPtr(3)})
	assert.ErrorIs(t, err, internal.ErrInvalidTransition)

	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end.Add(time.Second), FocusQualityRating: intPtr(5)})
	assert.ErrorIs(t, err, internal.ErrInvalidTransition)
}

func TestCancelRetryIsNoOp(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeShortBreak})
	require.NoError(t, err)

	end := session.StartTime.Add(10 * time.Second)
	req := &CancelSessionRequest{EndTime: end, Notes: "interrupted"}

	first, err := CancelSession(ctx, store, session.ID, req)
	require.NoError(t, err)
	assert.False(t, first.NoOp)
	assert.Equal(t, "interrupted", first.Session.Notes)

	second, err := CancelSession(ctx, store, session.ID, req)
	require.NoError(t, err)
	assert.True(t, second.NoOp)

	// Dropping the notes is a different request, not a retry.
	_, err = CancelSession(ctx, store, session.ID, &CancelSessionRequest{EndTime: end})
	assert.ErrorIs(t, err, internal.ErrInvalidTransition)
}

func TestRatingRejectedOnBreakSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeLongBreak})
	require.NoError(t, err)

	end := session.StartTime.Add(120 * time.Second)
	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end, FocusQualityRating: intPtr(4)})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))

	// The rejected call must not have mutated the record.
	stored, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusActive, stored.Status)
	assert.Nil(t, stored.EndTime)
}

func TestRatingOutOfRange(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus})
	require.NoError(t, err)

	end := session.StartTime.Add(60 * time.Second)
	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: end, FocusQualityRating: intPtr(6)})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
}

func TestEndTimeBeforeStartRejected(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus})
	require.NoError(t, err)

	_, err = CompleteSession(ctx, store, session.ID, &CompleteSessionRequest{EndTime: session.StartTime.Add(-time.Second)})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
}

func TestInvalidModeRejected(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: "nap"})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
}

func TestCompleteUnknownSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := CompleteSession(ctx, store, "missing", &CompleteSessionRequest{EndTime: time.Now()})
	assert.ErrorIs(t, err, internal.ErrSessionNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeFocus})
	require.NoError(t, err)
	second, err := StartSession(ctx, store, testUser, &StartSessionRequest{InitialMode: internal.ModeShortBreak})
	require.NoError(t, err)

	sessions, err := ListSessions(ctx, store, testUser)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}
