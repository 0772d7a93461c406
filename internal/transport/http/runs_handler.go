package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"quiz-publisher/internal/domain"
)

type RunsHandler struct {
	runner Runner
	logger *slog.Logger
}

func NewRunsHandler(runner Runner, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{runner: runner, logger: logger}
}

type runResponse struct {
	Report *domain.RunReport `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Create runs a quiz synchronously. The body is an optional RunRequest; the run
// keeps going if the client disconnects.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, runResponse{Error: "invalid run request"})
		return
	}
	if req.Count < 0 {
		writeJSON(w, http.StatusBadRequest, runResponse{Error: "count must not be negative"})
		return
	}

	report, err := h.runner.Run(context.WithoutCancel(r.Context()), req)
	resp := runResponse{}
	if report.RunID != "" {
		resp.Report = &report
	}
	if err != nil {
		resp.Error = err.Error()
		h.logger.Warn("run request failed", "topic", req.Topic, "err", err)
	}
	writeJSON(w, statusFor(err), resp)
}

func (h *RunsHandler) Topics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.runner.Topics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"topics": topics})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoTopics):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTemplateUnavailable), errors.Is(err, domain.ErrConversionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
