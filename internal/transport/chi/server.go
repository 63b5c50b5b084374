// Package chi is the HTTP adapter for the ingestion and query APIs.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	"github.com/kailas-cloud/hitdex/internal/logger"
	"github.com/kailas-cloud/hitdex/internal/store"
	healthuc "github.com/kailas-cloud/hitdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/hitdex/internal/usecase/search"
	"github.com/kailas-cloud/hitdex/internal/usecase/session"
)

// Default request limits.
const (
	DefaultMaxBatch = 1000
	DefaultPageSize = 50
	MaxPageSize     = 500
	maxBodyBytes    = 8 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the session API.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	maxBatch      int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:   search,
		health:   health,
		logger:   logger,
		maxBatch: DefaultMaxBatch,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrSessionClosed, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrSessionStopped, http.StatusConflict, CodeSessionStopped),
		sentinelHandler(domain.ErrMalformedHit, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidSlot, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidSort, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEventsTruncated, http.StatusGone, CodeResyncRequired),
		sentinelHandler(domain.ErrArchiveDisabled, http.StatusNotImplemented, CodeArchiveDisabled),
	}
	return s
}

// WithMaxBatch caps the number of hits accepted per ingest request.
func (s *Server) WithMaxBatch(n int) *Server {
	if n > 0 {
		s.maxBatch = n
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/sessions", s.StartSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Delete("/", s.RemoveSession)
		r.Post("/hits", s.IngestHits)
		r.Post("/stop", s.StopSession)
		r.Post("/clear", s.ClearSession)
		r.Get("/rows", s.ListRows)
		r.Delete("/rows/{position}", s.RemoveRow)
		r.Get("/positions/{identity}", s.PositionOfIdentity)
		r.Get("/groups/{seq}/position", s.PositionOfGroup)
		r.Get("/stats", s.Stats)
		r.Put("/sort", s.SetSort)
		r.Put("/filters/{slot}", s.SetFilter)
		r.Delete("/filters/{slot}", s.ClearFilter)
		r.Get("/events", s.Events)
		r.Get("/archive", s.Archive)
	})
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	sess, err := s.search.Start(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionToWire(sess))
}

// RemoveSession handles DELETE /sessions/{id}.
func (s *Server) RemoveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.search.Remove(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.handleDomainError(w, r, err)
		return
	}
	if err != nil {
		// The session is gone either way; only the snapshot was lost.
		logger.FromContext(r.Context()).Error("archive on remove", zap.String("session_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, RemoveResponse{ID: id, Archived: s.search.ArchiveEnabled() && err == nil})
}

// IngestHits handles POST /sessions/{id}/hits.
func (s *Server) IngestHits(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Hits) > s.maxBatch {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("at most %d hits per request", s.maxBatch))
		return
	}

	params := make([]hit.Params, len(req.Hits))
	for i, h := range req.Hits {
		params[i] = h.params()
	}

	res, err := s.search.Ingest(r.Context(), chi.URLParam(r, "id"), params)
	if errors.Is(err, domain.ErrRateLimited) {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, res)
		return
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// StopSession handles POST /sessions/{id}/stop.
func (s *Server) StopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.search.Stop(chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearSession handles POST /sessions/{id}/clear.
func (s *Server) ClearSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Clear(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRows handles GET /sessions/{id}/rows?offset=&limit=.
func (s *Server) ListRows(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", DefaultPageSize)
	if !ok {
		return
	}
	if offset < 0 || limit <= 0 || limit > MaxPageSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("offset must be >= 0 and limit between 1 and %d", MaxPageSize))
		return
	}

	rows, total, err := sess.Rows(r.Context(), offset, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []result.Row{}
	}
	writeJSON(w, http.StatusOK, RowsResponse{Rows: rows, Total: total, Offset: offset, Limit: limit})
}

// RemoveRow handles DELETE /sessions/{id}/rows/{position}.
func (s *Server) RemoveRow(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pos, ok := pathInt(w, r, "position")
	if !ok {
		return
	}
	row, err := sess.RemoveAt(r.Context(), pos)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// PositionOfIdentity handles GET /sessions/{id}/positions/{identity}.
func (s *Server) PositionOfIdentity(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pos, found, err := sess.PositionOfIdentity(r.Context(), chi.URLParam(r, "identity"))
	s.writePosition(w, r, pos, found, err)
}

// PositionOfGroup handles GET /sessions/{id}/groups/{seq}/position.
func (s *Server) PositionOfGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "seq must be an unsigned integer")
		return
	}
	pos, found, err := sess.PositionOf(r.Context(), seq)
	s.writePosition(w, r, pos, found, err)
}

func (s *Server) writePosition(w http.ResponseWriter, r *http.Request, pos int, found bool, err error) {
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, CodeNotFound, "group is not visible")
		return
	}
	writeJSON(w, http.StatusOK, PositionResponse{Position: pos})
}

// Stats handles GET /sessions/{id}/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SetSort handles PUT /sessions/{id}/sort.
func (s *Server) SetSort(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SortRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, err := store.ParseKey(req.Key)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := sess.SetSort(r.Context(), key, req.Ascending); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFilter handles PUT /sessions/{id}/filters/{slot}.
func (s *Server) SetFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	slot, ok := pathInt(w, r, "slot")
	if !ok {
		return
	}
	var req FilterRequest
	if !s.decode(w, r, &req) {
		return
	}
	expr, err := req.expression()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	changed, err := sess.SetFilter(r.Context(), slot, expr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FilterResponse{Slot: slot, Filter: expr.Name(), Changed: changed})
}

// ClearFilter handles DELETE /sessions/{id}/filters/{slot}.
func (s *Server) ClearFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	slot, ok := pathInt(w, r, "slot")
	if !ok {
		return
	}
	changed, err := sess.SetFilter(r.Context(), slot, nil)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FilterResponse{Slot: slot, Changed: changed})
}

// Events handles GET /sessions/{id}/events?after=.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "after must be an unsigned integer")
			return
		}
		after = n
	}

	events, last, err := sess.Events().Since(after)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: nonNil(events), Last: last})
}

// Archive handles GET /sessions/{id}/archive.
func (s *Server) Archive(w http.ResponseWriter, r *http.Request) {
	snap, err := s.search.Archived(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks, Sessions: report.Sessions})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.search.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func sessionToWire(sess *session.Session) SessionResponse {
	return SessionResponse{
		ID:        sess.ID(),
		Query:     sess.Query(),
		CreatedAt: sess.CreatedAt().UTC(),
		Stopped:   sess.Stopped(),
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
