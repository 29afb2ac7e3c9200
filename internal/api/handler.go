package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/harrier/internal/batch"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Evaluator decides single withdrawals on demand.
type Evaluator interface {
	Evaluate(ctx context.Context, w domain.WithdrawalRequest) (batch.Result, error)
	Live() bool
}

// Invalidator drops cached rule and policy sets after an edit.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Deps are the collaborators of a Handler. Cache, Bus, Catalog and
// Expressions are optional.
type Deps struct {
	Repo        domain.Repository
	Cache       domain.Cache
	Bus         domain.EventBus
	Evaluator   Evaluator
	Catalog     Invalidator
	Registry    *rules.Registry
	Expressions *rules.ExpressionEngine
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	evaluator   Evaluator
	catalog     Invalidator
	registry    *rules.Registry
	expressions *rules.ExpressionEngine
	validate    *validator.Validate
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	registry := deps.Registry
	if registry == nil {
		registry = rules.DefaultRegistry(deps.Expressions)
	}
	return &Handler{
		repo:        deps.Repo,
		cache:       deps.Cache,
		bus:         deps.Bus,
		evaluator:   deps.Evaluator,
		catalog:     deps.Catalog,
		registry:    registry,
		expressions: deps.Expressions,
		validate:    validator.New(),
		version:     version,
	}
}

// EvaluateResponse is the response for POST /withdrawals/evaluate.
type EvaluateResponse struct {
	batch.Result
	Live     bool `json:"live"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /withdrawals/evaluate. A withdrawal that was already
// decided returns the stored decision.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.WithdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.State == "" {
		req.State = domain.StateNew
	}
	if !req.State.Valid() {
		writeError(w, http.StatusBadRequest, "unknown withdrawal state: "+string(req.State))
		return
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	res, err := h.evaluator.Evaluate(ctx, req)
	if err != nil {
		slog.Error("withdrawal evaluation failed",
			"withdrawal_id", req.ID,
			"client_id", req.ClientID,
			"error", err,
		)
		writeError(w, errorStatus(err), "withdrawal evaluation failed")
		return
	}

	resp := EvaluateResponse{Result: res, Live: h.evaluator.Live()}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetSnapshot handles GET /snapshots/{id}, keyed by withdrawal id.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.repo.GetSnapshot(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get snapshot", "withdrawal_id", id, "error", err)
		}
		writeError(w, errorStatus(err), "snapshot not found")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// StateRequest is the request body for PUT /snapshots/{id}/state.
type StateRequest struct {
	State domain.WithdrawalState `json:"state" validate:"required"`
}

// UpdateSnapshotState handles PUT /snapshots/{id}/state. Only the mirrored
// vendor state changes; the decision is immutable.
func (h *Handler) UpdateSnapshotState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req StateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.State.Valid() {
		writeError(w, http.StatusBadRequest, "unknown withdrawal state: "+string(req.State))
		return
	}

	if err := h.repo.UpdateSnapshotState(ctx, id, req.State); err != nil {
		slog.Warn("failed to update snapshot state", "withdrawal_id", id, "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	s, err := h.repo.GetSnapshot(ctx, id)
	if err != nil {
		writeError(w, errorStatus(err), "snapshot not found")
		return
	}

	slog.Info("snapshot state updated",
		"withdrawal_id", id,
		"state", req.State,
		"operator_id", GetOperatorID(ctx),
	)
	writeJSON(w, http.StatusOK, s)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			return
		}
		components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server can serve decisions.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "repository not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders validator errors as "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": failed "+fe.Tag())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWithdrawalClosed):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
