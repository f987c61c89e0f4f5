package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/sanctum/internal/attest"
	"github.com/ppiankov/sanctum/internal/model"
	"go.uber.org/zap"
)

const maxSignalBytes = 1 << 20

// Server is the executor's HTTP surface: signal delivery, split lookup,
// health.
type Server struct {
	executor    *Executor
	attVerifier *attest.Verifier
	log         *zap.Logger
	started     time.Time
}

func NewServer(executor *Executor, attVerifier *attest.Verifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		executor:    executor,
		attVerifier: attVerifier,
		log:         log,
		started:     time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("GET /splits/{originRef}", s.handleSplit)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if err := s.attVerifier.Verify(r.Header.Get(attest.Header), body); err != nil {
		s.log.Warn("attestation rejected", zap.Error(err))
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "attestation invalid"})
		return
	}

	var signal model.ApprovalSignal
	if err := json.Unmarshal(body, &signal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed signal"})
		return
	}
	if signal.OriginRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing origin ref"})
		return
	}

	decision, err := s.executor.OnSignal(r.Context(), &signal)
	if err != nil {
		s.log.Error("signal handling failed",
			zap.String("origin", signal.OriginRef), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "split failed"})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	originRef := r.PathValue("originRef")
	record, err := s.executor.Record(r.Context(), originRef)
	if errors.Is(err, model.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no split for origin ref"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"minAmount": s.executor.MinAmount().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
