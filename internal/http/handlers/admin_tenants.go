package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/guarded-reply/internal/guardrail"
	httpmiddleware "github.com/wolfman30/guarded-reply/internal/http/middleware"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/internal/usage"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// SettingsStore reads and writes tenant settings.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string) (*tenant.Settings, error)
	Set(ctx context.Context, cfg *tenant.Settings) error
}

// QuotaStore reads the current period and sets a tenant's monthly limit.
type QuotaStore interface {
	Check(ctx context.Context, tenantID string) (usage.Counter, error)
	SetLimit(ctx context.Context, tenantID string, limit int) error
}

// AdminTenantsHandler serves tenant settings and quota administration.
type AdminTenantsHandler struct {
	settings SettingsStore
	quota    QuotaStore
	logger   *logging.Logger
}

func NewAdminTenantsHandler(settings SettingsStore, quota QuotaStore, logger *logging.Logger) *AdminTenantsHandler {
	if settings == nil {
		panic("handlers: settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTenantsHandler{settings: settings, quota: quota, logger: logger}
}

// settingsView hides channel secrets from responses.
type settingsView struct {
	*tenant.Settings
	Line lineCredentialView `json:"line"`
}

type lineCredentialView struct {
	ChannelSecretSet bool `json:"channel_secret_set"`
	AccessTokenSet   bool `json:"access_token_set"`
}

func viewOf(s *tenant.Settings) settingsView {
	return settingsView{
		Settings: s,
		Line: lineCredentialView{
			ChannelSecretSet: s.Line.ChannelSecret != "",
			AccessTokenSet:   s.Line.AccessToken != "",
		},
	}
}

// GetSettings returns the effective settings of a tenant.
// GET /admin/tenants/{tenantID}/settings
func (h *AdminTenantsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}
	cfg, err := h.settings.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to load tenant settings", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cfg))
}

// PutSettings replaces a tenant's settings. Blank LINE credentials keep the
// stored ones so secrets need not be resent on every edit.
// PUT /admin/tenants/{tenantID}/settings
func (h *AdminTenantsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}

	var incoming tenant.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&incoming); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := validateSettings(&incoming); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	current, err := h.settings.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to load tenant settings", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if incoming.Line.ChannelSecret == "" {
		incoming.Line.ChannelSecret = current.Line.ChannelSecret
	}
	if incoming.Line.AccessToken == "" {
		incoming.Line.AccessToken = current.Line.AccessToken
	}
	incoming.TenantID = tenantID
	incoming.Normalize()

	if err := h.settings.Set(r.Context(), &incoming); err != nil {
		h.logger.Error("failed to save tenant settings", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	subject, _ := httpmiddleware.AdminSubject(r.Context())
	h.logger.Info("tenant settings updated", "tenant_id", tenantID, "operator", subject)
	writeJSON(w, http.StatusOK, viewOf(&incoming))
}

func validateSettings(s *tenant.Settings) error {
	switch {
	case s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1:
		return errors.New("confidence_threshold must be within [0, 1]")
	case s.MaxReplyLength < 0 || s.MaxReplyLength > guardrail.HardCeiling:
		return errors.New("max_reply_length out of range")
	case s.MemoryWindow < 0 || s.MemoryWindow > tenant.MaxMemoryWindow:
		return errors.New("memory_window out of range")
	case s.GroundingMaxSnippets < 0 || s.GroundingMaxChars < 0:
		return errors.New("grounding limits must not be negative")
	}
	return nil
}

// GetUsage returns the tenant's consumption for the current period.
// GET /admin/tenants/{tenantID}/usage
func (h *AdminTenantsHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}
	if h.quota == nil {
		jsonError(w, "usage tracking disabled", http.StatusServiceUnavailable)
		return
	}
	counter, err := h.quota.Check(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to read usage", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"consumed":  counter.Consumed,
		"limit":     counter.Limit,
		"remaining": counter.Remaining(),
		"exceeded":  counter.Exceeded(),
	})
}

// PutQuota sets the monthly reply limit. -1 means unlimited.
// PUT /admin/tenants/{tenantID}/quota
func (h *AdminTenantsHandler) PutQuota(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}
	if h.quota == nil {
		jsonError(w, "usage tracking disabled", http.StatusServiceUnavailable)
		return
	}
	var payload struct {
		Limit *int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Limit == nil {
		jsonError(w, "limit is required", http.StatusBadRequest)
		return
	}
	if *payload.Limit < usage.Unlimited {
		jsonError(w, "limit must be -1 or greater", http.StatusBadRequest)
		return
	}
	if err := h.quota.SetLimit(r.Context(), tenantID, *payload.Limit); err != nil {
		h.logger.Error("failed to set quota", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "limit": *payload.Limit})
}
