package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/api"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/notify"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
)

type testApp struct {
	logger   internal.Logger
	repos    *storage.Repositories
	metrics  *service.MetricsService
	tools    *service.ToolTracker
	notifier *notify.Notifier
}

func (a *testApp) Logger() internal.Logger                  { return a.logger }
func (a *testApp) SessionRepo() storage.SessionRepository   { return a.repos.Sessions }
func (a *testApp) Metrics() *service.MetricsService         { return a.metrics }
func (a *testApp) Tools() *service.ToolTracker              { return a.tools }
func (a *testApp) AchievementFeed() storage.AchievementFeed { return a.repos.Achievements }
func (a *testApp) Notifier() *notify.Notifier               { return a.notifier }

func setupRouter(t *testing.T) (*gin.Engine, *testApp) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	logger := internal.NopLogger{}
	repos, store, err := storage.NewFileRepositories(
		filepath.Join(dir, "sessions.json"),
		filepath.Join(dir, "metrics.json"),
		filepath.Join(dir, "tool_usage.json"),
		logger,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	app := &testApp{
		logger:   logger,
		repos:    repos,
		metrics:  service.NewMetricsService(repos.Metrics, logger),
		tools:    service.NewToolTracker(repos.ToolUsage, logger),
		notifier: notify.NewNotifier(repos.Achievements, &notify.LogSink{Logger: logger}, logger),
	}
	t.Cleanup(app.notifier.Detach)

	r := gin.New()
	r.Use(api.RequestIDMiddleware())
	provider := auth.NewLocalAuthProvider("MOCK-TOKEN", logger)
	api.RegisterRoutes(r, app, auth.AuthMiddleware(provider))
	return r, app
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer MOCK-TOKEN")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta"`
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	r, _ := setupRouter(t)

	req, _ := http.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(t, r, "POST", "/sessions", `{"initial_mode":"focus","task_id":"t1"}`)
	require.Equal(t, 201, w.Code)

	var session internal.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, internal.StatusActive, session.Status)

	end := session.StartTime.Add(1500 * time.Second).Format(time.RFC3339Nano)
	completeBody := fmt.Sprintf(`{"end_time":"%s","focus_quality_rating":4}`, end)

	w = doRequest(t, r, "POST", "/sessions/"+session.ID+"/complete", completeBody)
	require.Equal(t, 200, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var completed internal.Session
	require.NoError(t, json.Unmarshal(resp.Data, &completed))
	assert.Equal(t, internal.StatusCompleted, completed.Status)
	require.NotNil(t, completed.DurationSeconds)
	assert.Equal(t, 1500, *completed.DurationSeconds)
	require.NotNil(t, completed.FocusQualityRating)
	assert.Equal(t, 4, *completed.FocusQualityRating)
	assert.Nil(t, resp.Meta["no_op"])

	// Retrying the identical terminal call is benign.
	w = doRequest(t, r, "POST", "/sessions/"+session.ID+"/complete", completeBody)
	require.Equal(t, 200, w.Code)
	resp = envelope{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp.Meta["no_op"])

	// A different terminal verb is a conflict.
	cancelBody := fmt.Sprintf(`{"end_time":"%s"}`, end)
	w = doRequest(t, r, "POST", "/sessions/"+session.ID+"/cancel", cancelBody)
	assert.Equal(t, 409, w.Code)
}

func TestStartSessionRejectsUnknownMode(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(t, r, "POST", "/sessions", `{"initial_mode":"nap"}`)
	assert.Equal(t, 400, w.Code)
}

func TestCompleteBreakWithRatingRejected(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(t, r, "POST", "/sessions", `{"initial_mode":"shortBreak"}`)
	require.Equal(t, 201, w.Code)
	var session internal.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	end := session.StartTime.Add(time.Minute).Format(time.RFC3339Nano)
	body := fmt.Sprintf(`{"end_time":"%s","focus_quality_rating":3}`, end)
	w = doRequest(t, r, "POST", "/sessions/"+session.ID+"/complete", body)
	assert.Equal(t, 400, w.Code)
}

func TestCompleteUnknownSessionIs404(t *testing.T) {
	r, _ := setupRouter(t)

	body := fmt.Sprintf(`{"end_time":"%s"}`, time.Now().Format(time.RFC3339Nano))
	w := doRequest(t, r, "POST", "/sessions/missing/complete", body)
	assert.Equal(t, 404, w.Code)
}

func TestMetricsEndpoints(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(t, r, "GET", "/metrics", "")
	require.Equal(t, 200, w.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var metrics []internal.EnergyMetric
	require.NoError(t, json.Unmarshal(resp.Data, &metrics))
	assert.Empty(t, metrics)

	w = doRequest(t, r, "POST", "/metrics", `{"physical_score":7,"mental_score":6,"emotional_score":8,"sleep_score":5}`)
	require.Equal(t, 201, w.Code)

	// The write invalidates the cached empty read.
	w = doRequest(t, r, "GET", "/metrics", "")
	require.Equal(t, 200, w.Code)
	resp = envelope{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, 7, metrics[0].PhysicalScore)
	assert.Contains(t, resp.Meta, "summary")

	w = doRequest(t, r, "POST", "/metrics", `{"physical_score":11,"mental_score":6,"emotional_score":8,"sleep_score":5}`)
	assert.Equal(t, 400, w.Code)

	w = doRequest(t, r, "GET", "/metrics?from=not-a-time", "")
	assert.Equal(t, 400, w.Code)
}

func TestToolActivateAndRelease(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(t, r, "POST", "/tools/activations", `{"tool_name":"breathing","tool_type":"relaxation"}`)
	require.Equal(t, 201, w.Code)
	var activation service.ToolActivation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activation))
	assert.Equal(t, "breathing", activation.ToolName)

	// Released immediately: under the threshold, nothing persisted, still 200.
	w = doRequest(t, r, "POST", "/tools/activations/"+activation.ID+"/release", "")
	require.Equal(t, 200, w.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp.Meta["recorded"])

	w = doRequest(t, r, "GET", "/tools/usage", "")
	require.Equal(t, 200, w.Code)
	resp = envelope{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var events []internal.ToolUsageEvent
	require.NoError(t, json.Unmarshal(resp.Data, &events))
	assert.Empty(t, events)

	// Unknown activation release is also a benign no-op.
	w = doRequest(t, r, "POST", "/tools/activations/unknown/release", "")
	assert.Equal(t, 200, w.Code)
}

func TestAchievementAttachDetach(t *testing.T) {
	r, app := setupRouter(t)

	w := doRequest(t, r, "POST", "/achievements/attach", "")
	require.Equal(t, 200, w.Code)
	userID, attached := app.Notifier().Attached()
	assert.True(t, attached)
	assert.Equal(t, "u1", userID)

	// Attaching again for the same user is a no-op.
	w = doRequest(t, r, "POST", "/achievements/attach", "")
	assert.Equal(t, 200, w.Code)

	w = doRequest(t, r, "POST", "/achievements/detach", "")
	require.Equal(t, 200, w.Code)
	_, attached = app.Notifier().Attached()
	assert.False(t, attached)
}
