package internal

import "time"

type User struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

// SessionMode is fixed at session creation and never changes.
type SessionMode string

const (
	ModeFocus      SessionMode = "focus"
	ModeShortBreak SessionMode = "shortBreak"
	ModeLongBreak  SessionMode = "longBreak"
)

func (m SessionMode) Valid() bool {
	switch m {
	case ModeFocus, ModeShortBreak, ModeLongBreak:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session. Active is the only
// initial state; the other three are terminal and absorbing.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusSkipped   SessionStatus = "skipped"
)

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusSkipped
}

// Session is one timed focus/break interval. EndTime and DurationSeconds
// are set exactly once, by the terminal transition.
type Session struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	InitialMode        SessionMode   `json:"initial_mode"`
	Status             SessionStatus `json:"status"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            *time.Time    `json:"end_time,omitempty"`
	DurationSeconds    *int          `json:"duration_seconds,omitempty"`
	TaskID             string        `json:"task_id,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	FocusQualityRating *int          `json:"focus_quality_rating,omitempty"` // 1–5, focus+completed only
	CreatedAt          time.Time     `json:"created_at"`
}

// EnergyMetric is a point-in-time measurement. Rows are immutable;
// corrections are new rows.
type EnergyMetric struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PhysicalScore  int       `json:"physical_score"`  // 1–10 scale
	MentalScore    int       `json:"mental_score"`    // 1–10 scale
	EmotionalScore int       `json:"emotional_score"` // 1–10 scale
	SleepScore     int       `json:"sleep_score"`     // 1–10 scale
	RecordedAt     time.Time `json:"recorded_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolUsageEvent is one engagement record, written on tool deactivation.
type ToolUsageEvent struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	ToolName        string            `json:"tool_name"`
	ToolType        string            `json:"tool_type"`
	SessionDuration int               `json:"session_duration"` // whole seconds
	Settings        map[string]string `json:"settings,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// AchievementProgressEvent is computed server-side; the client only
// observes inserts scoped to its user.
type AchievementProgressEvent struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AchievementKey string    `json:"achievement_key"`
	Progress       int       `json:"progress"`
	Unlocked       bool      `json:"unlocked"`
	CreatedAt      time.Time `json:"created_at"`
}
