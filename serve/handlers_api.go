package serve

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

	"github.com/monkeygold/automaton"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
		Since:  s.startedAt,
	})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	children, err := s.orch.Children(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := LimitsResponse{
		MaxChildren:      s.orch.MaxChildren(),
		LiveChildren:     automaton.LiveChildren(children),
		MinSpawnInterval: s.orch.MinSpawnInterval().String(),
		CanSpawn:         true,
	}
	if err := s.orch.CanSpawn(r.Context()); err != nil {
		resp.CanSpawn = false
		resp.Reason = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.orch.Children(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if children == nil {
		children = []automaton.ChildRecord{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (s *Server) handleGetChild(w http.ResponseWriter, r *http.Request) {
	child, err := s.orch.Child(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Provisioning outlives the request: each step is bounded by its own
	// remote timeout.
	child, err := s.orch.Spawn(context.WithoutCancel(r.Context()), s.cfg.Parent, automaton.GenesisConfig{
		Name:           req.Name,
		GenesisPrompt:  req.GenesisPrompt,
		CreatorMessage: req.CreatorMessage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Start(context.WithoutCancel(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{ID: id, Status: automaton.StatusRunning})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	output, err := s.orch.Poll(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	child, err := s.orch.Child(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PollResponse{ID: id, Status: child.Status, Output: output})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Content == "" {
		writeError(w, automaton.ErrInvalidInput)
		return
	}

	if err := s.orch.Send(r.Context(), chi.URLParam(r, "id"), req.Content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListModifications(w http.ResponseWriter, r *http.Request) {
	mods, err := s.orch.Modifications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if mods == nil {
		mods = []automaton.ModificationRecord{}
	}
	writeJSON(w, http.StatusOK, mods)
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &invalidBodyError{err: err}
	}
	return nil
}

type invalidBodyError struct{ err error }

func (e *invalidBodyError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *invalidBodyError) Unwrap() error { return automaton.ErrInvalidInput }

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, automaton.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, automaton.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, automaton.ErrChildNotFound):
		return http.StatusNotFound
	case errors.Is(err, automaton.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, automaton.ErrProvisioningFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var rl *automaton.RateLimitError
	if errors.As(err, &rl) {
		resp.WaitMinutes = rl.WaitMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.Wait.Seconds()+0.5)))
	}
	if status == http.StatusInternalServerError {
		slog.Error("api request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
