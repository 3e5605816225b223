package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobsieve/internal/gate"
	"github.com/amishk599/jobsieve/internal/match"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/orchestrator"
	"github.com/amishk599/jobsieve/internal/parser"
	"github.com/amishk599/jobsieve/internal/pipeline"
	"github.com/amishk599/jobsieve/internal/scoring"
	"github.com/amishk599/jobsieve/internal/settings"
	"github.com/amishk599/jobsieve/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const linkedInAlert = `Acme Corp
Senior Engineer
Acme Corp · London (Hybrid)
Acme Corp
Senior Engineer
Acme Corp · London (Hybrid)
Beta Ltd
Analyst
Beta Ltd · Leeds
£45,000 - £55,000 a year`

type testServer struct {
	router http.Handler
	jobs   *orchestrator.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithMatches(t, nil)
}

// newTestServerWithMatches keeps matches in ms when it is not nil.
func newTestServerWithMatches(t *testing.T, ms model.MatchStore) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	if ms == nil {
		ms = st
	}
	svc := settings.NewService(st, settings.Defaults{Threshold: 70})
	g := gate.New(svc, st, logger)
	matches := match.NewRepository(ms)
	driver := pipeline.NewDriver(pipeline.Deps{
		Parsers:  parser.NewRegistry(logger),
		Scorer:   scoring.NewScorer(nil, nil),
		Gate:     g,
		Matches:  matches,
		Settings: svc,
		Logger:   logger,
	})
	jobs := orchestrator.New(driver, st, orchestrator.Config{
		StepTimeout:    time.Second,
		RetryBaseDelay: time.Millisecond,
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = jobs.Shutdown(ctx)
	})

	router := NewRouter(&Dependencies{
		Driver:        driver,
		Jobs:          jobs,
		Settings:      svc,
		Matches:       matches,
		Gate:          g,
		DefaultUserID: "u1",
		Logger:        logger,
	})
	return &testServer{router: router, jobs: jobs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func linkedInBatch() []model.RawMessage {
	return []model.RawMessage{{
		Source:     model.SourceLinkedIn,
		Body:       linkedInAlert,
		ReceivedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestProcessMessages_ThenListAndFlagMatches(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/messages", gin.H{"messages": linkedInBatch()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[processMessagesResponse](t, w)
	assert.Equal(t, 3, resp.Summary.Found)
	assert.Equal(t, 2, resp.Summary.Added)
	assert.Equal(t, 1, resp.Summary.Duplicates)
	assert.Empty(t, resp.Error)

	w = s.do(t, http.MethodGet, "/api/v1/matches?user_id=u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Matches []model.MatchRecord `json:"matches"`
	}](t, w)
	require.Len(t, list.Matches, 2)

	w = s.do(t, http.MethodPatch, "/api/v1/matches/"+list.Matches[0].ID, gin.H{"is_saved": true})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/matches?only_saved=true", nil)
	saved := decode[struct {
		Matches []model.MatchRecord `json:"matches"`
	}](t, w)
	require.Len(t, saved.Matches, 1)
	assert.Equal(t, list.Matches[0].ID, saved.Matches[0].ID)
	assert.True(t, saved.Matches[0].IsSaved)

	w = s.do(t, http.MethodGet, "/api/v1/settings/stats", nil)
	stats := decode[settings.Stats](t, w)
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.Equal(t, 2, stats.TotalAdded)
}

// failingInserts rejects every new match.
type failingInserts struct {
	*store.MemoryStore
}

func (failingInserts) InsertMatch(context.Context, model.MatchRecord) (bool, error) {
	return false, errors.New("disk full")
}

func TestProcessMessages_StoreFailureStillAnswersWithCounters(t *testing.T) {
	s := newTestServerWithMatches(t, failingInserts{store.NewMemoryStore()})

	w := s.do(t, http.MethodPost, "/api/v1/messages", gin.H{"messages": linkedInBatch()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[processMessagesResponse](t, w)
	assert.Equal(t, 1, resp.Summary.Processed)
	assert.Equal(t, 3, resp.Summary.Found)
	assert.Equal(t, 3, resp.Summary.Failed)
	assert.Zero(t, resp.Summary.Added)
	assert.Contains(t, resp.Error, "disk full")
}

func TestProcessMessages_BadBody(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/messages", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMatchFlags_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPatch, "/api/v1/matches/nope", gin.H{"is_applied": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/matches/nope", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestThreshold_GetAndClampedSet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/settings/threshold", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":70}`, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/v1/settings/threshold", gin.H{"value": 150})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":100}`, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/v1/settings/threshold", gin.H{"value": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":0}`, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/v1/settings/threshold", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSourcePreferences_Clamped(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/v1/settings/sources/linkedin", model.AccessPreferences{
		Enabled:               true,
		MinDelayMs:            10,
		MaxConcurrent:         9,
		MaxResultsPerQuery:    0,
		RequireSafetyMeasures: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := decode[model.AccessPreferences](t, w)
	assert.Equal(t, model.MinDelayFloorMs, stored.MinDelayMs)
	assert.Equal(t, model.MaxConcurrentCeiling, stored.MaxConcurrent)
	assert.Equal(t, model.MinResultsPerQuery, stored.MaxResultsPerQuery)

	w = s.do(t, http.MethodGet, "/api/v1/settings/sources/linkedin", nil)
	assert.Equal(t, stored, decode[model.AccessPreferences](t, w))

	w = s.do(t, http.MethodGet, "/api/v1/settings/sources/myspace", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckAccess(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/access/indeed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Source   model.SourceKind `json:"source"`
		Decision gate.Decision    `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.SourceIndeed, resp.Source)
	assert.True(t, resp.Decision.Allowed)

	s.do(t, http.MethodPut, "/api/v1/settings/sources/indeed", model.AccessPreferences{Enabled: false, RequireSafetyMeasures: true})
	w = s.do(t, http.MethodGet, "/api/v1/access/indeed", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Decision.Allowed)
	assert.Equal(t, "source is disabled", resp.Decision.Reason)
}

func TestJobs_SubmitStartAndControl(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/jobs", gin.H{
		"name":     "import",
		"kind":     "ingest",
		"messages": linkedInBatch(),
		"start":    true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[model.JobSnapshot](t, w)
	assert.Equal(t, "u1", snap.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := s.jobs.Wait(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, state)

	w = s.do(t, http.MethodGet, "/api/v1/jobs/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[model.JobSnapshot](t, w)
	assert.Equal(t, model.JobCompleted, got.State)
	assert.Equal(t, 1, got.CompletedSteps)
	assert.Equal(t, 3, got.ResultsFound)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+snap.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/jobs", nil)
	list := decode[struct {
		Jobs []model.JobSnapshot `json:"jobs"`
	}](t, w)
	assert.Len(t, list.Jobs, 1)
}

func TestJobs_StopPending(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/jobs", gin.H{"kind": "ingest", "messages": linkedInBatch()})
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decode[model.JobSnapshot](t, w)
	assert.Equal(t, model.JobPending, snap.State)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+snap.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.JobStopped, decode[model.JobSnapshot](t, w).State)
}

func TestJobs_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown job", http.MethodGet, "/api/v1/jobs/missing", nil, http.StatusNotFound},
		{"start unknown job", http.MethodPost, "/api/v1/jobs/missing/start", nil, http.StatusNotFound},
		{"search without queries", http.MethodPost, "/api/v1/jobs", gin.H{"kind": "search"}, http.StatusBadRequest},
		{"ingest without messages", http.MethodPost, "/api/v1/jobs", gin.H{"kind": "ingest"}, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/v1/jobs", gin.H{"kind": "crawl"}, http.StatusBadRequest},
		{"missing kind", http.MethodPost, "/api/v1/jobs", gin.H{"name": "x"}, http.StatusBadRequest},
		{"bad step timeout", http.MethodPost, "/api/v1/jobs", gin.H{"kind": "ingest", "messages": linkedInBatch(), "step_timeout": "soon"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStreamJobEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	w := s.do(t, http.MethodPost, "/api/v1/jobs", gin.H{"kind": "ingest", "messages": linkedInBatch()})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[model.JobSnapshot](t, w).ID

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
			events = append(events, strings.TrimSpace(name))
		}
	}
	assert.Equal(t, []string{"snapshot", "progress", "completed"}, events)
}

func TestStreamJobEvents_UnknownJob(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/jobs/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
