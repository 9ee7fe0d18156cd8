package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/enumerate"
	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

// maxRunKeys bounds a single API-triggered run.
const maxRunKeys = 100000

// StudyLookup reads stored records.
type StudyLookup interface {
	Lookup(ctx context.Context, key geo.StudyKey) (geo.StudyRecord, error)
}

// ReadyFunc reports whether downstream dependencies are usable.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the study store and run manager.
type Server struct {
	router chi.Router
	lookup StudyLookup
	runs   *RunManager
	ready  ReadyFunc
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(lookup StudyLookup, runs *RunManager, ready ReadyFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		lookup: lookup,
		runs:   runs,
		ready:  ready,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/studies/{study_id}", s.getStudy)
		r.Post("/run", s.startRun)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// studyResponse is the JSON view of a stored record.
type studyResponse struct {
	ID             int64           `json:"id"`
	StudyID        string          `json:"study_id"`
	Status         *string         `json:"status"`
	Title          *string         `json:"title"`
	Organism       *string         `json:"organism"`
	ExperimentType *string         `json:"experiment_type"`
	Summary        *string         `json:"summary"`
	OverallDesign  *string         `json:"overall_design"`
	Citations      *string         `json:"citations"`
	BioProject     *string         `json:"bioproject"`
	Platforms      json.RawMessage `json:"platforms"`
	NumSamples     *int64          `json:"num_samples"`
	SampleIDs      json.RawMessage `json:"sample_ids"`
	SampleMetadata json.RawMessage `json:"sample_metadata"`
	AIAnnotation   *string         `json:"ai_annotation"`
}

func newStudyResponse(rec geo.StudyRecord) studyResponse {
	return studyResponse{
		ID:             rec.ID,
		StudyID:        string(rec.StudyID),
		Status:         rec.Status,
		Title:          rec.Title,
		Organism:       rec.Organism,
		ExperimentType: rec.ExperimentType,
		Summary:        rec.Summary,
		OverallDesign:  rec.OverallDesign,
		Citations:      rec.Citations,
		BioProject:     rec.BioProject,
		Platforms:      rawJSON(rec.Platforms),
		NumSamples:     rec.NumSamples,
		SampleIDs:      rawJSON(rec.SampleIDs),
		SampleMetadata: rawJSON(rec.SampleMetadata),
		AIAnnotation:   rec.AIAnnotation,
	}
}

// rawJSON embeds stored JSON text as-is, or as a JSON string when the column
// holds something else.
func rawJSON(s *string) json.RawMessage {
	if s == nil {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(*s)) {
		return json.RawMessage(*s)
	}
	b, _ := json.Marshal(*s)
	return b
}

func (s *Server) getStudy(w http.ResponseWriter, r *http.Request) {
	key := geo.StudyKey(strings.ToUpper(chi.URLParam(r, "study_id")))
	rec, err := s.lookup.Lookup(r.Context(), key)
	switch {
	case errors.Is(err, geo.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "study not found")
		return
	case err != nil:
		s.logger.Error("study lookup failed", zap.String("study_id", string(key)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, newStudyResponse(rec))
}

type runRequest struct {
	Prefix string   `json:"prefix"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Keys   []string `json:"keys"`
}

func (req runRequest) studyKeys() ([]geo.StudyKey, error) {
	if len(req.Keys) > 0 {
		return enumerate.Explicit(req.Keys), nil
	}
	if req.End < req.Start || req.Start < 0 {
		return nil, errors.New("start and end must form a non-empty range")
	}
	if req.End-req.Start+1 > maxRunKeys {
		return nil, errors.New("range too large")
	}
	prefix := req.Prefix
	if prefix == "" {
		prefix = enumerate.DefaultPrefix
	}
	return enumerate.Range(prefix, req.Start, req.End), nil
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "runs are not enabled")
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	keys, err := req.studyKeys()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.runs.Start(keys)
	if errors.Is(err, ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID, "keys": len(keys)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "runs are not enabled")
		return
	}
	state, ok := s.runs.Get(chi.URLParam(r, "run_id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
