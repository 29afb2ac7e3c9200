package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
)

// RuleRequest is the request body for creating or updating a rule definition.
type RuleRequest struct {
	Key         string          `json:"key" validate:"required,max=64"`
	Description string          `json:"description,omitempty" validate:"max=512"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Critical    bool            `json:"critical"`
	Position    int             `json:"position" validate:"gte=0"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// RuleResponse wraps a saved definition. Warning is set for keys no
// evaluator is registered for; such rules are skipped at evaluation time.
type RuleResponse struct {
	Rule    *domain.RuleDefinition `json:"rule"`
	Warning string                 `json:"warning,omitempty"`
}

// ListRules handles GET /rules. ?enabled=true limits to enabled definitions.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	defs, err := h.repo.ListRuleDefinitions(r.Context(), enabledOnly)
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if defs == nil {
		defs = []*domain.RuleDefinition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": defs,
		"count": len(defs),
	})
}

// ListRuleKeys handles GET /rules/keys: the rule keys this build can evaluate.
func (h *Handler) ListRuleKeys(w http.ResponseWriter, r *http.Request) {
	keys := h.registry.Keys()
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// GetRule handles GET /rules/{key}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	def, err := h.repo.GetRuleDefinition(r.Context(), key)
	if err != nil {
		writeError(w, errorStatus(err), "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// CreateRule handles POST /rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Key = strings.ToUpper(strings.TrimSpace(req.Key))

	if _, err := h.repo.GetRuleDefinition(r.Context(), req.Key); err == nil {
		writeError(w, http.StatusConflict, "rule already exists: "+req.Key)
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		slog.Error("failed to check rule", "rule_key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	h.saveRule(w, r, req, http.StatusCreated)
}

// UpdateRule handles PUT /rules/{key}. The key in the path wins over the body.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	existing, err := h.repo.GetRuleDefinition(r.Context(), key)
	if err != nil {
		writeError(w, errorStatus(err), "rule not found")
		return
	}

	var req RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Key = existing.Key
	if req.Enabled == nil {
		req.Enabled = &existing.Enabled
	}

	h.saveRule(w, r, req, http.StatusOK)
}

func (h *Handler) saveRule(w http.ResponseWriter, r *http.Request, req RuleRequest, status int) {
	ctx := r.Context()

	if len(req.Config) > 0 && !json.Valid(req.Config) {
		writeError(w, http.StatusBadRequest, "config must be valid JSON")
		return
	}
	if req.Key == domain.RuleExpression && h.expressions != nil {
		if err := h.expressions.ValidateConfig(req.Config); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	def := &domain.RuleDefinition{
		Key:         req.Key,
		Description: req.Description,
		Enabled:     req.Enabled == nil || *req.Enabled,
		Critical:    req.Critical,
		Position:    req.Position,
		Config:      req.Config,
	}
	if err := h.repo.SaveRuleDefinition(ctx, def); err != nil {
		slog.Error("failed to save rule", "rule_key", def.Key, "error", err)
		writeError(w, errorStatus(err), "failed to save rule")
		return
	}
	h.invalidate(r)

	resp := RuleResponse{Rule: def}
	if _, ok := h.registry.Lookup(def.Key); !ok {
		resp.Warning = "unrecognized rule key; it will be skipped during evaluation"
	}

	slog.Info("rule saved",
		"rule_key", def.Key,
		"enabled", def.Enabled,
		"critical", def.Critical,
		"operator_id", GetOperatorID(ctx),
	)
	writeJSON(w, status, resp)
}

// ToggleRule handles POST /rules/{key}/toggle.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	def, err := h.repo.GetRuleDefinition(ctx, key)
	if err != nil {
		writeError(w, errorStatus(err), "rule not found")
		return
	}
	if err := h.repo.SetRuleEnabled(ctx, key, !def.Enabled); err != nil {
		writeError(w, errorStatus(err), "failed to toggle rule")
		return
	}
	h.invalidate(r)

	slog.Info("rule toggled",
		"rule_key", key,
		"enabled", !def.Enabled,
		"operator_id", GetOperatorID(ctx),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"enabled": !def.Enabled,
	})
}

// DeleteRule handles DELETE /rules/{key}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.repo.DeleteRuleDefinition(ctx, key); err != nil {
		writeError(w, errorStatus(err), "rule not found")
		return
	}
	h.invalidate(r)

	slog.Info("rule deleted", "rule_key", key, "operator_id", GetOperatorID(ctx))
	w.WriteHeader(http.StatusNoContent)
}

// ListPolicies handles GET /bonus-policies. ?active=true limits to active policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	policies, err := h.repo.ListBonusPolicies(r.Context(), activeOnly)
	if err != nil {
		slog.Error("failed to list bonus policies", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bonus policies")
		return
	}
	if policies == nil {
		policies = []*domain.BonusPolicy{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// ListPolicyKeywords handles GET /bonus-policies/keys: the match keywords in match order.
func (h *Handler) ListPolicyKeywords(w http.ResponseWriter, r *http.Request) {
	policies, err := h.repo.ListBonusPolicies(r.Context(), true)
	if err != nil {
		slog.Error("failed to list bonus policies", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bonus policies")
		return
	}

	keys := make([]string, 0, len(policies))
	for _, p := range policies {
		keys = append(keys, p.MatchKeyword)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// GetPolicy handles GET /bonus-policies/{id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.repo.GetBonusPolicy(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), "bonus policy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePolicy handles POST /bonus-policies.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// wagering is checked unless the body says otherwise
	p := domain.BonusPolicy{CheckWageringStatus: true}
	if !h.decode(w, r, &p) {
		return
	}

	if p.ID != "" {
		if _, err := h.repo.GetBonusPolicy(ctx, p.ID); err == nil {
			writeError(w, http.StatusConflict, "bonus policy already exists: "+p.ID)
			return
		}
	}
	h.savePolicy(w, r, &p, http.StatusCreated)
}

// UpdatePolicy handles PUT /bonus-policies/{id}. Fields missing from the body
// keep their stored values. CreatedAt is preserved so the policy keeps its
// place among equal priorities.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.repo.GetBonusPolicy(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), "bonus policy not found")
		return
	}

	p := *existing
	if !h.decode(w, r, &p) {
		return
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt

	h.savePolicy(w, r, &p, http.StatusOK)
}

func (h *Handler) savePolicy(w http.ResponseWriter, r *http.Request, p *domain.BonusPolicy, status int) {
	ctx := r.Context()

	if err := h.repo.SaveBonusPolicy(ctx, p); err != nil {
		slog.Error("failed to save bonus policy", "policy_id", p.ID, "error", err)
		writeError(w, errorStatus(err), "failed to save bonus policy")
		return
	}
	h.invalidate(r)

	slog.Info("bonus policy saved",
		"policy_id", p.ID,
		"name", p.Name,
		"keyword", p.MatchKeyword,
		"active", p.IsActive,
		"operator_id", GetOperatorID(ctx),
	)
	writeJSON(w, status, p)
}

// TogglePolicy handles POST /bonus-policies/{id}/toggle.
func (h *Handler) TogglePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p, err := h.repo.GetBonusPolicy(ctx, id)
	if err != nil {
		writeError(w, errorStatus(err), "bonus policy not found")
		return
	}
	if err := h.repo.SetBonusPolicyActive(ctx, id, !p.IsActive); err != nil {
		writeError(w, errorStatus(err), "failed to toggle bonus policy")
		return
	}
	h.invalidate(r)

	slog.Info("bonus policy toggled",
		"policy_id", id,
		"active", !p.IsActive,
		"operator_id", GetOperatorID(ctx),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"isActive": !p.IsActive,
	})
}

// DeletePolicy handles DELETE /bonus-policies/{id}.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteBonusPolicy(ctx, id); err != nil {
		writeError(w, errorStatus(err), "bonus policy not found")
		return
	}
	h.invalidate(r)

	slog.Info("bonus policy deleted", "policy_id", id, "operator_id", GetOperatorID(ctx))
	w.WriteHeader(http.StatusNoContent)
}

// invalidate makes the next evaluation read the edited configuration.
func (h *Handler) invalidate(r *http.Request) {
	if h.catalog != nil {
		h.catalog.Invalidate(r.Context())
	}
}
