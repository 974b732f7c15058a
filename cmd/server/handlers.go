package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/study-pilot/internal/roadmap"
	"github.com/p-n-ai/study-pilot/internal/study"
)

const (
	maxRequestBytes = 1 << 20
	readyTimeout    = 2 * time.Second
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type dependencyError struct {
	name string
	err  error
}

func (e *dependencyError) Error() string { return e.name + ": " + e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }

// newMux creates the HTTP router with health and learning endpoints.
func newMux(svc *study.Service, checks map[string]healthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))

	mux.HandleFunc("POST /v1/quizzes", handleGenerateQuiz(svc))
	mux.HandleFunc("POST /v1/quizzes/{id}/submit", handleSubmitQuiz(svc))
	mux.HandleFunc("POST /v1/roadmaps", handleGenerateRoadmap(svc))
	mux.HandleFunc("GET /v1/roadmaps/{learner}/{course}", handleLatestRoadmap(svc))
	mux.HandleFunc("GET /v1/progress/{learner}/{course}", handleProgress(svc))
	mux.HandleFunc("GET /v1/recommendations/{learner}/{course}", handleRecommendations(svc))

	return recoverMiddleware(accessLogMiddleware(mux))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		for name, c := range checks {
			g.Go(func() error {
				if err := c.HealthCheck(gctx); err != nil {
					return &dependencyError{name: name, err: err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			var dep *dependencyError
			if !errors.As(err, &dep) {
				writeError(w, http.StatusServiceUnavailable, "")
				return
			}
			slog.Warn("readiness check failed", "dependency", dep.name, "error", dep.err)
			writeError(w, http.StatusServiceUnavailable, dep.name+" unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

func handleGenerateQuiz(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req study.QuizRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q, err := svc.GenerateQuiz(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusCreated
		if !q.Available {
			status = http.StatusOK
		}
		writeJSON(w, status, q)
	}
}

type submitRequest struct {
	Responses []string `json:"responses"`
}

func handleSubmitQuiz(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sub, err := svc.SubmitQuiz(r.Context(), r.PathValue("id"), req.Responses)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func handleGenerateRoadmap(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in study.RoadmapInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		plan, err := svc.GenerateRoadmap(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, plan)
	}
}

// handleLatestRoadmap serves the stored plan. ?adjust=true rewrites its
// summary from current mastery and ?format=xlsx returns a spreadsheet.
func handleLatestRoadmap(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner, course := r.PathValue("learner"), r.PathValue("course")

		var (
			plan roadmap.Roadmap
			err  error
		)
		if r.URL.Query().Get("adjust") == "true" {
			plan, err = svc.AdjustRoadmap(r.Context(), learner, course)
		} else {
			plan, err = svc.LatestRoadmap(r.Context(), learner, course)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
			w.Header().Set("Content-Type", xlsxContentType)
			w.Header().Set("Content-Disposition",
				fmt.Sprintf(`attachment; filename="roadmap-%s-%s.xlsx"`, learner, course))
			if err := roadmap.ExportXLSX(plan, w); err != nil {
				slog.Error("roadmap export failed", "learner_id", learner, "course_id", course, "error", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

func handleProgress(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Progress(r.Context(), r.PathValue("learner"), r.PathValue("course"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleRecommendations(svc *study.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.Recommendations(r.Context(), r.PathValue("learner"), r.PathValue("course"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, study.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, study.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, study.ErrAlreadySubmitted), errors.Is(err, study.ErrStaleMastery):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
