package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/scriptgen"
	"github.com/testforge/docforge/pkg/httputil"
)

// maxScriptsPerRequest bounds a request; synthesis is paced and sequential.
const maxScriptsPerRequest = 50

// SynthesizerFactory returns a synthesizer for a framework; empty selects
// the configured default.
type SynthesizerFactory func(domain.ScriptFramework) (*scriptgen.Synthesizer, error)

// ScriptHandler handles script synthesis
type ScriptHandler struct {
	synthesizer SynthesizerFactory
	logger      *zap.Logger
}

// NewScriptHandler creates a new script handler
func NewScriptHandler(synthesizer SynthesizerFactory, logger *zap.Logger) *ScriptHandler {
	return &ScriptHandler{synthesizer: synthesizer, logger: logger}
}

// ScriptsRequest is the request body for synthesizing scripts
type ScriptsRequest struct {
	Framework domain.ScriptFramework `json:"framework,omitempty"`
	TestCases []domain.TestCase      `json:"test_cases"`
}

// ScriptsResponse carries one script per non-diagnostic test case.
type ScriptsResponse struct {
	Framework domain.ScriptFramework   `json:"framework"`
	Scripts   []domain.GeneratedScript `json:"scripts"`

	// Skipped counts diagnostic records, which describe no test.
	Skipped int `json:"skipped"`
}

// Synthesize handles POST /api/v1/scripts
func (h *ScriptHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req ScriptsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if len(req.TestCases) == 0 {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("test_cases", "at least one test case is required"))
		return
	}
	if len(req.TestCases) > maxScriptsPerRequest {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("test_cases",
			fmt.Sprintf("at most %d test cases per request", maxScriptsPerRequest)))
		return
	}

	synth, err := h.synthesizer(req.Framework)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	cases := make([]domain.TestCase, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		if !tc.IsDiagnostic() {
			cases = append(cases, tc)
		}
	}

	resp := ScriptsResponse{
		Framework: synth.Framework(),
		Scripts:   synth.SynthesizeAll(r.Context(), cases),
		Skipped:   len(req.TestCases) - len(cases),
	}
	httputil.JSON(w, http.StatusOK, resp)
}
