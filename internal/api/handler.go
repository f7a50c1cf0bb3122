// Package api provides HTTP handlers for the embedding service API.
package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/embedworks/embedgate/internal/observability"
	"github.com/embedworks/embedgate/internal/service"
	svcerrors "github.com/embedworks/embedgate/pkg/errors"
	"github.com/embedworks/embedgate/pkg/types"
)

// maxRequestBody bounds POST /embeddings payloads (16 MiB).
const maxRequestBody = 16 << 20

// Handler handles HTTP requests for the embedding service.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Embeddings handles POST /embeddings requests.
func (h *Handler) Embeddings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, r, svcerrors.NewInvalidRequestError("", "failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req types.EmbeddingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, svcerrors.NewInvalidRequestError("", "invalid JSON: "+err.Error()))
		return
	}

	resp, err := h.svc.GenerateEmbeddings(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ModelInfo handles GET /model/info requests. The boundary reports 503
// when nothing is loaded so orchestration can distinguish a cold service.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info := h.svc.GetModelInfo()
	if !info.IsLoaded {
		h.writeError(w, r, svcerrors.NewNotLoadedError(
			"no model is currently loaded; it will be loaded on the first embedding request"))
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// LoadModel handles POST /model/load?model_name=... requests. The response
// is written only after the load completes or fails.
func (h *Handler) LoadModel(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("model_name")
	if name == "" {
		h.writeError(w, r, svcerrors.NewInvalidRequestError("", "model_name query parameter is required"))
		return
	}

	if err := h.svc.LoadModel(r.Context(), name); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "model " + name + " loaded successfully",
	})
}

// UnloadModel handles POST /model/unload requests.
func (h *Handler) UnloadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UnloadModel(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "model unloaded successfully",
	})
}

// Health handles GET /health requests. Healthy and degraded report 200 so
// a starting service is not killed mid-load; unhealthy reports 503 to
// trigger the container probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.svc.Health()

	status := http.StatusOK
	if health.Status == types.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, health)
}

// Root handles GET / with service identification.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	health := h.svc.Health()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "embedgate embedding service",
		"version": health.Version,
		"health":  "/health",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr, ok := err.(*svcerrors.ServiceError)
	if !ok {
		svcErr = svcerrors.NewInternalError("", err.Error())
	}

	h.logger.Error("request failed",
		"path", r.URL.Path,
		"type", svcErr.Type,
		"request_id", observability.RequestIDFromContext(r.Context()),
		"error", svcErr.Message,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatusCode())

	resp := ErrorResponse{
		Error: ErrorDetail{
			Message: svcErr.Message,
			Type:    svcErr.Type,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
