// Package api serves stored analysis runs and on-demand analysis of uploaded
// recordings as JSON.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/wear.report/internal/config"
	"github.com/banshee-data/wear.report/internal/db"
	"github.com/banshee-data/wear.report/internal/httputil"
	"github.com/banshee-data/wear.report/internal/ingest"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/questionnaire"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/timeutil"
	"github.com/banshee-data/wear.report/internal/wear"
	"github.com/banshee-data/wear.report/internal/window"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxUploadBytes caps an uploaded recording.
const maxUploadBytes = 256 << 20

type Server struct {
	db    *db.DB
	cfg   *config.AnalysisConfig
	reg   *questionnaire.Registry
	clock timeutil.Clock
}

// NewServer returns a Server. store may be nil, in which case the run
// endpoints are not mounted and uploads are never stored.
func NewServer(store *db.DB, cfg *config.AnalysisConfig, reg *questionnaire.Registry) *Server {
	if cfg == nil {
		cfg = config.EmptyAnalysisConfig()
	}
	if reg == nil {
		reg = questionnaire.NewDefaultRegistry()
	}
	return &Server{db: store, cfg: cfg, reg: reg, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used to time analyses.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	if s.db != nil {
		mux.HandleFunc("GET /api/runs", s.listRuns)
		mux.HandleFunc("GET /api/runs/{id}", s.showRun)
		mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
		mux.HandleFunc("GET /api/runs/{id}/windows", s.showWindows)
		mux.HandleFunc("GET /api/runs/{id}/summary", s.showSummary)
		mux.HandleFunc("GET /api/runs/{id}/counts", s.showCounts)
	}
	mux.HandleFunc("POST /api/analyze/wear", s.analyzeWear)
	mux.HandleFunc("POST /api/analyze/counts", s.analyzeCounts)
	mux.HandleFunc("GET /api/questionnaires", s.listQuestionnaires)
	mux.HandleFunc("POST /api/questionnaires/{name}", s.scoreQuestionnaire)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.Handle("GET /metrics", monitoring.MetricsHandler())
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// statusFor maps analysis and storage errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrRunNotFound),
		errors.Is(err, questionnaire.ErrUnknownQuestionnaire),
		errors.Is(err, wear.ErrEmptyResult):
		return http.StatusNotFound
	case errors.Is(err, timeseries.ErrValidation),
		errors.Is(err, window.ErrConfiguration),
		errors.Is(err, ingest.ErrFormat),
		errors.Is(err, questionnaire.ErrInvalidResponses):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, statusFor(err), err.Error())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"sampling_rate":   s.cfg.GetSamplingRate(),
		"timezone":        s.cfg.GetTimezone(),
		"acc_unit":        s.cfg.GetAccUnit(),
		"window_sec":      s.cfg.GetWindowSec(),
		"overlap_percent": s.cfg.GetOverlapPercent(),
		"storing_runs":    s.db != nil,
	})
}
