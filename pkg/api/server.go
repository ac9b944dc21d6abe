package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/meshgraph/pkg/engine"
	"github.com/rmax-ai/meshgraph/pkg/ingest"
	"github.com/rmax-ai/meshgraph/pkg/model"
	"github.com/rmax-ai/meshgraph/pkg/query"
	"github.com/rmax-ai/meshgraph/pkg/reports"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// Querier answers graph and dependency queries.
type Querier interface {
	GetGraph(ctx context.Context, from, to time.Time) (*model.Model, error)
	GetDependencyModel(ctx context.Context, from, to time.Time, nodeID string) (*model.Model, error)
	GetServiceDependencyModel(ctx context.Context, from, to time.Time, nodeID, service string) (*model.Model, error)
}

// ObservationSink accepts call observations for the live graph.
type ObservationSink interface {
	Submit(ctx context.Context, obs ingest.Observation) error
}

// ReconcilerInterface runs a single reconciliation tick on demand.
type ReconcilerInterface interface {
	Tick(ctx context.Context) (engine.Outcome, error)
}

// PrunerInterface runs retention once on demand.
type PrunerInterface interface {
	Prune(ctx context.Context) (int64, error)
}

type ElectionManagerInterface interface {
	IsLeader() bool
}

// Server exposes the dependency graph over HTTP.
type Server struct {
	query        Querier
	observations ObservationSink
	reconciler   ReconcilerInterface
	pruner       PrunerInterface
	snapshots    store.SnapshotCatalog
	election     ElectionManagerInterface

	router chi.Router
	server *http.Server

	tlsCertFile string
	tlsKeyFile  string
}

// NewServer builds the router. Optional collaborators are attached with the
// Set* methods before Start.
func NewServer(q Querier, obs ObservationSink, addr string) *Server {
	s := &Server{
		query:        q,
		observations: obs,
	}

	r := chi.NewRouter()
	r.Use(withLogging, withRecovery, withSecureHeaders)

	r.Get("/v1/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/graph", s.handleGraph)
		r.Get("/dependencies/{nodeID}", s.handleDependencies)
		r.Get("/dependencies/{nodeID}/services/{service}", s.handleServiceDependencies)
		r.Get("/reports/{reportType}", s.handleReport)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Get("/snapshots/{snapshotID}", s.handleGetSnapshot)
		r.Post("/observations", s.handleObservations)
		r.Post("/admin/reconcile", s.withLeaderCheck(s.handleReconcile))
		r.Post("/admin/prune", s.withLeaderCheck(s.handlePrune))
	})
	s.router = r

	if addr == "" {
		addr = ":8095"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

func (s *Server) SetReconciler(r ReconcilerInterface) {
	s.reconciler = r
}

func (s *Server) SetPruner(p PrunerInterface) {
	s.pruner = p
}

func (s *Server) SetSnapshotCatalog(c store.SnapshotCatalog) {
	s.snapshots = c
}

func (s *Server) SetElectionManager(em ElectionManagerInterface) {
	s.election = em
}

func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until Stop is called.
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		slog.Info("Server starting", "addr", s.server.Addr, "tls", true)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
		return nil
	}
	slog.Info("Server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	m, err := s.query.GetGraph(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	m, err := s.query.GetDependencyModel(r.Context(), from, to, chi.URLParam(r, "nodeID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) handleServiceDependencies(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	m, err := s.query.GetServiceDependencyModel(r.Context(), from, to, chi.URLParam(r, "nodeID"), chi.URLParam(r, "service"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	format, ok := reports.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_format", Details: "format must be csv or json"})
		return
	}
	gen, err := reports.NewReportGenerator(reports.ReportType(chi.URLParam(r, "reportType")), s.query)
	if err != nil {
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "unknown_report", Details: err.Error()})
		return
	}

	body, err := gen.Generate(r.Context(), reports.ReportParams{Start: from, End: to, Format: format})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Failed to write report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		http.Error(w, `{"error":"snapshots_not_available"}`, http.StatusServiceUnavailable)
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	if to.IsZero() {
		to = time.Now()
	}
	infos, err := s.snapshots.ListSnapshots(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if infos == nil {
		infos = []store.SnapshotInfo{}
	}
	writeJSON(w, r, http.StatusOK, SnapshotListResponse{Snapshots: infos})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		http.Error(w, `{"error":"snapshots_not_available"}`, http.StatusServiceUnavailable)
		return
	}
	snap, err := s.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "snapshotID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	var req ObservationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if len(req.Observations) == 0 {
		http.Error(w, `{"error":"missing_observations"}`, http.StatusBadRequest)
		return
	}

	resp := ObservationsResponse{}
	for idx, obs := range req.Observations {
		if err := s.observations.Submit(r.Context(), obs); err != nil {
			if errors.Is(err, ingest.ErrQueueClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("Observation intake unavailable", "trace_id", getTraceID(r.Context()), "error", err)
				http.Error(w, `{"error":"ingest_unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			resp.Rejected = append(resp.Rejected, RejectedObservation{Index: idx, Reason: err.Error()})
			continue
		}
		resp.Accepted++
	}

	writeJSON(w, r, http.StatusAccepted, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		http.Error(w, `{"error":"reconciler_not_available"}`, http.StatusServiceUnavailable)
		return
	}
	outcome, err := s.reconciler.Tick(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ReconcileResponse{Outcome: string(outcome)})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if s.pruner == nil {
		http.Error(w, `{"error":"retention_not_configured"}`, http.StatusServiceUnavailable)
		return
	}
	count, err := s.pruner.Prune(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, PruneResponse{Status: "success", PrunedCount: count})
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// parseWindow reads the optional from/to unix-millisecond parameters.
// Absent values and 0 mean "unbounded" and are returned as the zero time:
// from=0&to=0 selects the live graph, to=0 reaches up to now.
func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	var from, to time.Time
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			http.Error(w, `{"error":"invalid_from","format":"unix_millis"}`, http.StatusBadRequest)
			return from, to, false
		}
		if ms > 0 {
			from = time.UnixMilli(ms)
		}
	}
	if v := q.Get("to"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			http.Error(w, `{"error":"invalid_to","format":"unix_millis"}`, http.StatusBadRequest)
			return from, to, false
		}
		if ms > 0 {
			to = time.UnixMilli(ms)
		}
	}
	return from, to, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := getTraceID(r.Context())
	switch {
	case errors.Is(err, query.ErrInvalidRange):
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_range", Details: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "not_found"})
	case store.IsStorageError(err):
		slog.Error("Storage unavailable", "trace_id", traceID, "path", r.URL.Path, "error", err)
		writeJSON(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "storage_unavailable"})
	default:
		slog.Error("Request failed", "trace_id", traceID, "path", r.URL.Path, "error", err)
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path, "trace_id", getTraceID(r.Context()))
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		slog.Info("HTTP request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		next.ServeHTTP(w, r)
	})
}

// Middleware: Leader Check. Admin writes on a standby replica would be no-ops.
func (s *Server) withLeaderCheck(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.election == nil || s.election.IsLeader() {
			next(w, r)
			return
		}
		http.Error(w, `{"error":"service_unavailable","reason":"not_leader"}`, http.StatusServiceUnavailable)
	}
}
