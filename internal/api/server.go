// Package api implements the HTTP control plane of spec.md §6: mandate
// submission, run status and lineage reads, and a live event feed over SSE
// and WebSocket. Handlers never mutate run state directly — they only ever
// read a Run's snapshot methods or dispatch into internal/evolution.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/evoforge/evoforge/internal/auth"
	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/evolution"
	"github.com/evoforge/evoforge/internal/lineage"
	"log/slog"
)

// Server is the control-plane HTTP server: one Orchestrator shared across
// every run it starts, and a registry of runs it has started this process
// lifetime.
type Server struct {
	port       int
	orch       *evolution.Orchestrator
	logger     *slog.Logger
	httpServer *http.Server
	jwtSecret  []byte

	registry   *runRegistry
	debugStore *lineage.DebugStore
}

// NewServer builds a control-plane Server over a shared Orchestrator.
// dataDir names the directory the lineage debug-export sqlite file
// (lineage_debug.db) is opened under; if it cannot be opened, the export
// routes respond 503 rather than failing server startup.
func NewServer(port int, orch *evolution.Orchestrator, logger *slog.Logger, dataDir string) *Server {
	secret := auth.SecretFromEnv()
	if secret == nil {
		logger.Warn("EVOFORGE_JWT_SECRET not set — running in dev mode (unauthenticated API access)")
	}

	store, err := lineage.OpenDebugStore(filepath.Join(dataDir, "lineage_debug.db"))
	if err != nil {
		logger.Warn("lineage debug store unavailable, /lineage/export disabled", "error", err)
		store = nil
	}

	return &Server{
		port:       port,
		orch:       orch,
		logger:     logger.With("component", "api"),
		jwtSecret:  secret,
		registry:   newRunRegistry(),
		debugStore: store,
	}
}

// Start serves the control plane until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/lineage", s.handleGetLineage)
	mux.HandleFunc("POST /runs/{id}/lineage/export", s.handleExportLineage)
	mux.HandleFunc("GET /runs/{id}/lineage/export", s.handleGetLineageExport)
	mux.HandleFunc("POST /runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /runs/{id}/breed", s.handleBreed)
	mux.HandleFunc("GET /runs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	authed := s.authWrapper(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.corsMiddleware(s.loggingMiddleware(authed)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // unbounded: required for long-lived SSE/WS connections
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("control plane starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down control plane")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		if s.debugStore != nil {
			if closeErr := s.debugStore.Close(); closeErr != nil {
				s.logger.Warn("closing lineage debug store", "error", closeErr)
			}
		}
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authWrapper guards every mutating route with a bearer JWT; reads (health,
// run status, lineage, the event stream) stay open so a dashboard doesn't
// need a token to watch a run it was given the id for.
func (s *Server) authWrapper(next http.Handler) http.Handler {
	authed := auth.Middleware(s.jwtSecret)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}

// EvictFinishedRuns drops completed/failed/cancelled runs whose FinishedAt
// is older than maxAge from the run registry, for the supplemented
// retention sweep in cmd/evoforged.
func (s *Server) EvictFinishedRuns(maxAge time.Duration) int {
	n := s.registry.evictOlderThan(maxAge, time.Now())
	if n > 0 {
		s.logger.Info("retention sweep evicted runs", "count", n, "max_age", maxAge)
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.registry.count(),
	})
}

// createRunRequest is the POST /runs body: a mandate plus the run-level
// budgets spec §3 attaches to it.
type createRunRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Domain          string   `json:"domain"`
	Constraints     []string `json:"constraints"`
	SuccessCriteria []string `json:"successCriteria"`
	MaxIterations   int      `json:"maxIterations"`
	MaxAgents       int      `json:"maxAgents"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	mandate := domain.Mandate{
		Title:           req.Title,
		Description:     req.Description,
		Domain:          req.Domain,
		Constraints:     req.Constraints,
		SuccessCriteria: req.SuccessCriteria,
		MaxIterations:   req.MaxIterations,
		MaxAgents:       req.MaxAgents,
		CreatedAt:       time.Now(),
	}
	if mandate.MaxIterations <= 0 {
		mandate.MaxIterations = 10
	}
	if mandate.MaxAgents <= 0 {
		mandate.MaxAgents = 5
	}

	run := s.orch.NewRun(mandate)
	mandate.ID = run.ID
	run.Mandate.ID = run.ID
	s.registry.add(run)

	go s.orch.Execute(context.Background(), run)

	s.logger.Info("run started", "id", run.ID, "title", mandate.Title)
	writeJSON(w, http.StatusCreated, map[string]string{"runId": run.ID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.registry.list()
	views := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		views = append(views, summarize(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, runView(run))
}

func (s *Server) handleGetLineage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"familyTree": run.Lineage.FamilyTree(),
		"stats":      run.Lineage.Stats(),
	})
}

// handleExportLineage implements spec §4.4's exportSnapshot debug path over
// HTTP: it dumps the run's full lineage graph into the sqlite debug store
// (internal/lineage.DebugStore), off the hot path, for post-mortem
// inspection of a completed or crashed run.
func (s *Server) handleExportLineage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if s.debugStore == nil {
		WriteError(w, http.StatusServiceUnavailable, "lineage debug store unavailable")
		return
	}

	snap := run.Lineage.ExportSnapshot()
	exportedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.debugStore.Save(run.ID, exportedAt, snap); err != nil {
		s.logger.Error("lineage export failed", "run", run.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}

	s.logger.Info("lineage exported", "run", run.ID, "exportedAt", exportedAt, "nodes", len(snap.Nodes))
	writeJSON(w, http.StatusCreated, map[string]any{"exportedAt": exportedAt, "nodes": len(snap.Nodes)})
}

// handleGetLineageExport returns the most recently saved debug-store dump
// for a run.
func (s *Server) handleGetLineageExport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if s.debugStore == nil {
		WriteError(w, http.StatusServiceUnavailable, "lineage debug store unavailable")
		return
	}

	snap, err := s.debugStore.Load(run.ID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "no export found for this run")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	run.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// breedRequest is the body for the advanced, control-plane-only breeding
// path of spec §4.6's last paragraph.
type breedRequest struct {
	Parent1 string `json:"parent1Id"`
	Parent2 string `json:"parent2Id"`
	Role    string `json:"role"`
}

func (s *Server) handleBreed(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	var req breedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	child, err := s.orch.Breed(run, req.Parent1, req.Parent2, populationRole(req.Role))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": child.ID, "generation": child.Generation})
}

