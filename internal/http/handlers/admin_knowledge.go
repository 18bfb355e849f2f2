package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/guarded-reply/internal/knowledge"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// KnowledgeStore manages the documents grounding draws from.
type KnowledgeStore interface {
	Put(ctx context.Context, tenantID string, docs ...knowledge.Document) error
	Delete(ctx context.Context, tenantID string, sourceIDs ...string) error
	List(ctx context.Context, tenantID string) ([]knowledge.Document, error)
}

const maxKnowledgeDocuments = 500

// AdminKnowledgeHandler serves knowledge document CRUD for a tenant.
type AdminKnowledgeHandler struct {
	repo   KnowledgeStore
	logger *logging.Logger
}

func NewAdminKnowledgeHandler(repo KnowledgeStore, logger *logging.Logger) *AdminKnowledgeHandler {
	if repo == nil {
		panic("handlers: knowledge store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminKnowledgeHandler{repo: repo, logger: logger}
}

// ListDocuments returns every document of a tenant.
// GET /admin/tenants/{tenantID}/knowledge
func (h *AdminKnowledgeHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}
	docs, err := h.repo.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list knowledge", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "documents": docs})
}

// PutDocuments upserts documents by source id.
// PUT /admin/tenants/{tenantID}/knowledge
func (h *AdminKnowledgeHandler) PutDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		jsonError(w, "missing tenantID", http.StatusBadRequest)
		return
	}
	var payload struct {
		Documents []knowledge.Document `json:"documents"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&payload); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(payload.Documents) == 0 {
		jsonError(w, "documents required", http.StatusBadRequest)
		return
	}
	if len(payload.Documents) > maxKnowledgeDocuments {
		jsonError(w, "too many documents", http.StatusBadRequest)
		return
	}
	for i := range payload.Documents {
		d := &payload.Documents[i]
		d.SourceID = strings.TrimSpace(d.SourceID)
		if d.SourceID == "" || strings.TrimSpace(d.Text) == "" {
			jsonError(w, "each document needs source_id and text", http.StatusBadRequest)
			return
		}
	}
	if err := h.repo.Put(r.Context(), tenantID, payload.Documents...); err != nil {
		h.logger.Error("failed to store knowledge", "tenant_id", tenantID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "stored": len(payload.Documents)})
}

// DeleteDocument removes one document.
// DELETE /admin/tenants/{tenantID}/knowledge/{sourceID}
func (h *AdminKnowledgeHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	sourceID := strings.TrimSpace(chi.URLParam(r, "sourceID"))
	if tenantID == "" || sourceID == "" {
		jsonError(w, "missing tenantID or sourceID", http.StatusBadRequest)
		return
	}
	if err := h.repo.Delete(r.Context(), tenantID, sourceID); err != nil {
		h.logger.Error("failed to delete knowledge", "tenant_id", tenantID, "source_id", sourceID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
