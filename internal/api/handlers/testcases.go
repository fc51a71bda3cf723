package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/generation"
	"github.com/testforge/docforge/pkg/httputil"
)

// maxTopK bounds the k a request may ask for.
const maxTopK = 50

// GeneratorFactory returns a generator on the configured backend.
type GeneratorFactory func() (*generation.Generator, error)

// TestCaseHandler handles test case generation
type TestCaseHandler struct {
	base        KnowledgeBase
	generator   GeneratorFactory
	defaultTopK int
	logger      *zap.Logger
}

// NewTestCaseHandler creates a new test case handler
func NewTestCaseHandler(base KnowledgeBase, generator GeneratorFactory, defaultTopK int, logger *zap.Logger) *TestCaseHandler {
	return &TestCaseHandler{base: base, generator: generator, defaultTopK: defaultTopK, logger: logger}
}

// GenerateRequest is the request body for generating test cases
type GenerateRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Generate handles POST /api/v1/testcases. Generation failures are reported
// in the result body with status "degraded", not as HTTP errors.
func (h *TestCaseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("query", "query is required"))
		return
	}
	if req.K < 0 || req.K > maxTopK {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("k", "k must be between 1 and 50"))
		return
	}
	if req.K == 0 {
		req.K = h.defaultTopK
	}

	gen, err := h.generator()
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	result := gen.Run(r.Context(), h.base, req.Query, req.K)
	if result.Status == generation.StatusDegraded {
		h.logger.Warn("Test case generation degraded",
			zap.String("state", string(result.State)),
			zap.String("failure", result.Failure),
		)
	}
	httputil.JSON(w, http.StatusOK, result)
}
