package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/content"
)

const progressTimeout = 3 * time.Second

// ExecutionHandler exposes read-only execution progress.
type ExecutionHandler struct {
	repo    ExecutionReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutionHandler wires the repository and logger.
func NewExecutionHandler(repo ExecutionReader, logger *zap.Logger) *ExecutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// GetExecution handles GET /v1/executions/{execution_id}. It returns
// {"success": true, "execution": {...}}, 404 for unknown IDs and 503 when no
// repository is configured.
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: "execution store unavailable", ErrorType: string(apperr.CodeInternal)})
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "execution_id"))
	if id == "" {
		writeError(w, apperr.New(apperr.CodeInvalidInput, "get execution", "execution_id is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	exec, err := h.repo.GetExecution(ctx, id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, apperr.Newf(apperr.CodeNotFound, "get execution", "execution %s not found", id))
			return
		}
		h.logger.Error("get execution failed", zap.String("execution_id", id), zap.Error(err))
		writeError(w, apperr.Wrap(apperr.CodeDatabase, "get execution", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "execution": exec})
}
