package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

var validate = validator.New()

type StartSessionRequest struct {
	InitialMode internal.SessionMode `json:"initial_mode" validate:"required,oneof=focus shortBreak longBreak"`
	TaskID      string               `json:"task_id,omitempty"`
}

type CompleteSessionRequest struct {
	EndTime            time.Time `json:"end_time" validate:"required"`
	FocusQualityRating *int      `json:"focus_quality_rating,omitempty" validate:"omitempty,gte=1,lte=5"`
}

type CancelSessionRequest struct {
	EndTime time.Time `json:"end_time" validate:"required"`
	Notes   string    `json:"notes,omitempty"`
}

type SkipSessionRequest struct {
	EndTime time.Time `json:"end_time" validate:"required"`
}

// SessionResult reports a terminal transition. NoOp means the session was
// already terminal with identical arguments; the stored row is unchanged
// and the caller should treat the retry as benign.
type SessionResult struct {
	Session *internal.Session `json:"session"`
	NoOp    bool              `json:"no_op,omitempty"`
}

func ValidateStartSessionRequest(req *StartSessionRequest) error {
	return validate.Struct(req)
}

// StartSession creates and persists a new active session. start_time is
// stamped here; end_time stays unset until a terminal transition.
func StartSession(ctx context.Context, repo storage.SessionRepository, user *internal.User, req *StartSessionRequest) (*internal.Session, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("initial_mode", err.Error())
	}

	now := time.Now()
	session := &internal.Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		InitialMode: req.InitialMode,
		Status:      internal.StatusActive,
		StartTime:   now,
		TaskID:      req.TaskID,
		CreatedAt:   now,
	}
	if err := repo.SaveSession(ctx, session); err != nil {
		return nil, internal.NewPersistenceError("save session", err)
	}
	return session, nil
}

// CompleteSession moves an active session to completed and derives its
// duration. A quality rating is accepted only for focus sessions; supplying
// one on a break session is rejected, not dropped.
func CompleteSession(ctx context.Context, repo storage.SessionRepository, sessionID string, req *CompleteSessionRequest) (*SessionResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("focus_quality_rating", err.Error())
	}
	return terminalTransition(ctx, repo, sessionID, internal.StatusCompleted, req.EndTime, req.FocusQualityRating, "")
}

func CancelSession(ctx context.Context, repo storage.SessionRepository, sessionID string, req *CancelSessionRequest) (*SessionResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("end_time", err.Error())
	}
	return terminalTransition(ctx, repo, sessionID, internal.StatusCancelled, req.EndTime, nil, req.Notes)
}

func SkipSession(ctx context.Context, repo storage.SessionRepository, sessionID string, req *SkipSessionRequest) (*SessionResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("end_time", err.Error())
	}
	return terminalTransition(ctx, repo, sessionID, internal.StatusSkipped, req.EndTime, nil, "")
}

func ListSessions(ctx context.Context, repo storage.SessionRepository, user *internal.User) ([]internal.Session, error) {
	sessions, err := repo.ListSessions(ctx, user.ID)
	if err != nil {
		return nil, internal.NewPersistenceError("list sessions", err)
	}
	return sessions, nil
}

func terminalTransition(ctx context.Context, repo storage.SessionRepository, sessionID string, target internal.SessionStatus, endTime time.Time, rating *int, notes string) (*SessionResult, error) {
	session, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, internal.ErrSessionNotFound) {
			return nil, err
		}
		return nil, internal.NewPersistenceError("get session", err)
	}

	if session.Status.Terminal() {
		if isIdempotentRepeat(session, target, endTime, rating, notes) {
			return &SessionResult{Session: session, NoOp: true}, nil
		}
		return nil, internal.ErrInvalidTransition
	}

	if endTime.Before(session.StartTime) {
		return nil, internal.NewValidationError("end_time", "must not be before start_time")
	}
	if rating != nil && session.InitialMode != internal.ModeFocus {
		return nil, internal.NewValidationError("focus_quality_rating", "only focus sessions can be rated")
	}

	duration := int(endTime.Sub(session.StartTime).Round(time.Second) / time.Second)
	session.Status = target
	session.EndTime = &endTime
	session.DurationSeconds = &duration
	if notes != "" {
		session.Notes = notes
	}
	if rating != nil {
		session.FocusQualityRating = rating
	}

	if err := repo.UpdateSession(ctx, session); err != nil {
		return nil, internal.NewPersistenceError("update session", err)
	}
	return &SessionResult{Session: session}, nil
}

// isIdempotentRepeat recognizes a client retry of the terminal call that
// already succeeded: same target state, same end time, same optional fields.
func isIdempotentRepeat(session *internal.Session, target internal.SessionStatus, endTime time.Time, rating *int, notes string) bool {
	if session.Status != target {
		return false
	}
	if session.EndTime == nil || !session.EndTime.Equal(endTime) {
		return false
	}
	if (rating == nil) != (session.FocusQualityRating == nil) {
		return false
	}
	if rating != nil && *rating != *session.FocusQualityRating {
		return false
	}
	if session.Notes != notes {
		return false
	}
	return true
}
