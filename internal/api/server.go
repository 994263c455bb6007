// Package api provides the HTTP API for querying the cascade engine and
// stored runs. GET endpoints are public and read-only. POST endpoints
// require a bearer token.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/cascade/internal/cascade"
	"github.com/talgya/cascade/internal/params"
	"github.com/talgya/cascade/internal/persistence"
)

const defaultRunsLimit = 20

// Server serves the engine and stored runs over HTTP.
type Server struct {
	Engine   *cascade.Engine
	Provider cascade.BufferProvider
	DB       *persistence.DB // nil disables run history
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// RunLimiter throttles POST /api/v1/runs. Nil uses 30 per hour.
	RunLimiter *RateLimiter
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	limiter := s.RunLimiter
	if limiter == nil {
		limiter = NewRateLimiter(30, time.Hour)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/series", s.handleSeries)
	mux.HandleFunc("GET /api/v1/signatures", s.handleSignatures)
	mux.HandleFunc("GET /api/v1/record/{layer}", s.handleRecord)
	mux.HandleFunc("GET /api/v1/verdict", s.handleVerdict)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/run/{id}", s.handleRun)

	// Admin endpoint: executes and stores a run.
	mux.HandleFunc("POST /api/v1/runs", s.adminOnly(RateLimitMiddleware(limiter, s.handleCreateRun)))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "history", s.DB != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CASCADE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.Engine.Params
	status := map[string]any{
		"name":          "cascade",
		"alpha":         p.Alpha,
		"layers":        p.Layers,
		"phase":         p.Phase.String(),
		"buffer_size":   p.BufferSize(),
		"buffer_human":  humanize.IBytes(uint64(p.BufferSize())),
		"record_size":   cascade.RecordSize,
		"cascade_total": s.Engine.Series.Total,
		"history":       s.DB != nil,
	}
	if s.DB != nil {
		if n, err := s.DB.CountRuns(); err == nil {
			status["runs"] = n
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Series)
}

type signatureEntry struct {
	cascade.LayerSignature
	Text      string `json:"text"`
	DigestHex string `json:"digest_hex"`
}

func (s *Server) handleSignatures(w http.ResponseWriter, r *http.Request) {
	sigs, err := s.Engine.Signatures()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]signatureEntry, len(sigs))
	for i, sig := range sigs {
		out[i] = signatureEntry{
			LayerSignature: sig,
			Text:           sig.String(),
			DigestHex:      hex.EncodeToString(sig.Digest[:]),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	layer, err := strconv.Atoi(r.PathValue("layer"))
	if err != nil {
		http.Error(w, "layer must be an integer", http.StatusBadRequest)
		return
	}
	raw, err := s.Engine.Record(layer)
	if err != nil {
		writeError(w, err)
		return
	}
	decoded, err := cascade.DecodeRecord(s.Engine.Params, layer, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"layer":  layer,
		"hex":    hex.EncodeToString(raw),
		"size":   len(raw),
		"fields": decoded,
	})
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	v, err := s.Engine.Verdict()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}
	run, err := s.DB.LoadRun(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.Engine.Run(r.Context(), s.Provider)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.DB != nil {
		if err := s.DB.SaveReport(report); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      report.ID,
		"elapsed": report.Elapsed.String(),
		"verdict": report.Verdict,
		"stored":  s.DB != nil,
	})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, params.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, params.ErrArithmeticOverflow):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.Error("api request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
