package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/vectorstore"
	"github.com/testforge/docforge/pkg/httputil"
)

// KnowledgeBase is the part of knowledge.Base the API uses.
type KnowledgeBase interface {
	Ingest(ctx context.Context, docs []domain.Document) *domain.IngestReport
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.RetrievedChunk, error)
	RetrieveFiltered(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]knowledge.RetrievedChunk, error)
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (knowledge.Stats, error)
}

// KnowledgeHandler handles knowledge base requests
type KnowledgeHandler struct {
	base   KnowledgeBase
	logger *zap.Logger
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(base KnowledgeBase, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{base: base, logger: logger}
}

// IngestRequest is the request body for ingesting documents. Content is
// base64 encoded.
type IngestRequest struct {
	Reset     bool              `json:"reset"`
	Documents []domain.Document `json:"documents"`
}

// Ingest handles POST /api/v1/documents
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if len(req.Documents) == 0 {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("documents", "at least one document is required"))
		return
	}
	for _, d := range req.Documents {
		if strings.TrimSpace(d.Filename) == "" {
			httputil.ErrorFromDomain(w, domain.ErrValidationField("filename", "every document needs a filename"))
			return
		}
	}

	if req.Reset {
		if err := h.base.Reset(r.Context()); err != nil {
			h.logger.Error("Failed to reset knowledge base", zap.Error(err))
			httputil.ErrorFromDomain(w, err)
			return
		}
	}

	report := h.base.Ingest(r.Context(), req.Documents)
	httputil.JSON(w, http.StatusOK, report)
}

// Stats handles GET /api/v1/knowledge
func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.base.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to read knowledge base stats", zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

// Reset handles DELETE /api/v1/knowledge
func (h *KnowledgeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.base.Reset(r.Context()); err != nil {
		h.logger.Error("Failed to reset knowledge base", zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}
	h.logger.Info("Knowledge base reset")
	w.WriteHeader(http.StatusNoContent)
}
