package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/platform/config"
	"github.com/p-n-ai/study-pilot/internal/quiz"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
	"github.com/p-n-ai/study-pilot/internal/study"
)

var fixedNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func testService(t *testing.T) *study.Service {
	t.Helper()
	catalog, err := curriculum.NewCatalog([]curriculum.Course{{
		ID:   "cs201",
		Name: "Data Structures",
		Topics: []curriculum.Topic{
			{ID: "arrays", Name: "Arrays", Week: 1},
			{ID: "lists", Name: "Linked Lists", Week: 2},
		},
		Questions: []curriculum.Question{
			{ID: "a1", TopicID: "arrays", Text: "Index of first element?", Difficulty: mastery.Easy, CorrectAnswer: "0"},
			{ID: "a2", TopicID: "arrays", Text: "Arrays are contiguous.", Difficulty: mastery.Medium,
				Type: curriculum.TrueFalse, CorrectAnswer: "true"},
		},
	}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	svc, err := study.NewService(study.ServiceConfig{
		Catalog:   catalog,
		Selector:  quiz.NewSeededSelector(7),
		Scheduler: roadmap.NewSchedulerWithClock(func() time.Time { return fixedNow }),
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checks     map[string]healthChecker
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			checks:     map[string]healthChecker{"database": fakeCheck{}},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz reports failing dependency",
			path:       "/readyz",
			checks:     map[string]healthChecker{"cache": fakeCheck{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"cache unavailable"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(testService(t), tt.checks)
			rec := do(t, mux, http.MethodGet, tt.path, "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestQuizFlow(t *testing.T) {
	mux := newMux(testService(t), nil)

	rec := do(t, mux, http.MethodPost, "/v1/quizzes",
		`{"learner_id":"u1","course_id":"cs201","topic_id":"arrays","size":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "correct_answer") {
		t.Error("quiz view must not reveal answers")
	}
	q := decode[study.Quiz](t, rec)
	if len(q.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(q.Questions))
	}

	answers := map[string]string{"a1": "0", "a2": "True"}
	responses := make([]string, len(q.Questions))
	for i, v := range q.Questions {
		responses[i] = answers[v.ID]
	}
	body, _ := json.Marshal(map[string]any{"responses": responses})

	rec = do(t, mux, http.MethodPost, "/v1/quizzes/"+q.ID+"/submit", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	sub := decode[study.Submission](t, rec)
	if sub.Score != 2 || sub.Percentage != 100 {
		t.Errorf("score = %d (%v%%), want 2 (100%%)", sub.Score, sub.Percentage)
	}
	if len(sub.MasteryUpdates) != 1 || sub.MasteryUpdates[0].After <= sub.MasteryUpdates[0].Before {
		t.Errorf("MasteryUpdates = %+v, want one increase", sub.MasteryUpdates)
	}

	rec = do(t, mux, http.MethodPost, "/v1/quizzes/"+q.ID+"/submit", string(body))
	if rec.Code != http.StatusConflict {
		t.Errorf("resubmit status = %d, want 409", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/v1/progress/u1/cs201", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d", rec.Code)
	}
	p := decode[study.Progress](t, rec)
	if len(p.Topics) != 2 || p.Topics[0].Attempts != 2 {
		t.Errorf("progress = %+v", p)
	}

	rec = do(t, mux, http.MethodGet, "/v1/recommendations/u1/cs201", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recommendations status = %d", rec.Code)
	}
	recs := decode[map[string][]study.Recommendation](t, rec)
	if got := recs["recommendations"]; len(got) == 0 || got[0].TopicID != "lists" {
		t.Errorf("recommendations = %+v, want lists first", got)
	}
}

func TestErrorMapping(t *testing.T) {
	mux := newMux(testService(t), nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"malformed json", http.MethodPost, "/v1/quizzes", `{`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/quizzes", `{"learner":"u1"}`, http.StatusBadRequest},
		{"missing learner", http.MethodPost, "/v1/quizzes", `{"course_id":"cs201"}`, http.StatusBadRequest},
		{"unknown course", http.MethodPost, "/v1/quizzes", `{"learner_id":"u1","course_id":"nope"}`, http.StatusNotFound},
		{"unknown quiz", http.MethodPost, "/v1/quizzes/missing/submit", `{"responses":[]}`, http.StatusNotFound},
		{"bad goal date", http.MethodPost, "/v1/roadmaps",
			`{"learner_id":"u1","course_id":"cs201","goal_date":"March","hours_per_week":5}`, http.StatusBadRequest},
		{"goal past horizon", http.MethodPost, "/v1/roadmaps",
			`{"learner_id":"u1","course_id":"cs201","goal_date":"9999-12-31","hours_per_week":5}`, http.StatusBadRequest},
		{"no roadmap yet", http.MethodGet, "/v1/roadmaps/u1/cs201", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/v1/quizzes", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusMethodNotAllowed {
				if body := decode[map[string]string](t, rec); body["error"] == "" {
					t.Error("error body should carry a message")
				}
			}
		})
	}
}

func TestRoadmapEndpoints(t *testing.T) {
	mux := newMux(testService(t), nil)

	rec := do(t, mux, http.MethodPost, "/v1/roadmaps",
		`{"learner_id":"u1","course_id":"cs201","goal_date":"2024-03-01","hours_per_week":10,"focus_areas":["list"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body.String())
	}
	plan := decode[roadmap.Roadmap](t, rec)
	if plan.TotalWeeks != 8 || len(plan.Weeks) != 8 {
		t.Errorf("TotalWeeks = %d, len(Weeks) = %d, want 8", plan.TotalWeeks, len(plan.Weeks))
	}

	rec = do(t, mux, http.MethodGet, "/v1/roadmaps/u1/cs201", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	if got := decode[roadmap.Roadmap](t, rec); got.Summary != plan.Summary {
		t.Errorf("latest summary = %q, want %q", got.Summary, plan.Summary)
	}

	rec = do(t, mux, http.MethodGet, "/v1/roadmaps/u1/cs201?adjust=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust status = %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/v1/roadmaps/u1/cs201?format=xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(roadmap.PlanSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) < 2 {
		t.Errorf("len(rows) = %d, want header and sessions", len(rows))
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
	}{
		{config.LogConfig{Level: "debug", Format: "text"}, true},
		{config.LogConfig{Level: "info", Format: "json"}, false},
		{config.LogConfig{Level: "WARN", Format: "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Level+"/"+tt.cfg.Format, func(t *testing.T) {
			logger := newLogger(tt.cfg)
			if got := logger.Enabled(context.Background(), -4); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}
