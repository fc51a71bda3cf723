package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/chunker"
	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/embedding"
	"github.com/testforge/docforge/internal/generation"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/llm"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/scriptgen"
	"github.com/testforge/docforge/internal/vectorstore"
	"github.com/testforge/docforge/pkg/httputil"
)

type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *llm.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, &llm.Usage{InputTokens: 10, OutputTokens: 5}, f.err
}

type testServer struct {
	router *Router
	base   *knowledge.Base
	llm    *fakeLLM
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	base := knowledge.NewBase(vectorstore.NewMemoryStore(), embedding.NewHashEmbedder(64),
		chunker.NewSplitter(), metrics, nil)
	client := &fakeLLM{}

	router := NewRouter(RouterConfig{
		Base: base,
		Generator: func() (*generation.Generator, error) {
			return generation.NewGenerator(client, metrics, nil), nil
		},
		Synthesizer: func(fw domain.ScriptFramework) (*scriptgen.Synthesizer, error) {
			if fw != "" && !fw.IsValid() {
				return nil, domain.ErrValidationField("framework", "unknown framework")
			}
			return scriptgen.NewSynthesizer(base, client, scriptgen.Config{Framework: fw}, metrics, nil), nil
		},
		DefaultTopK:    6,
		Metrics:        metrics,
		APIKey:         apiKey,
		CORSOrigins:    []string{"*"},
		MaxRequestSize: 1 << 20,
		Logger:         zap.NewNop(),
		Timeout:        10 * time.Second,
	})
	return &testServer{router: router, base: base, llm: client}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, httputil.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp httputil.Response
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// redecode converts a generic response payload into a typed value.
func redecode(t *testing.T, data any, v any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

var sampleDocs = []domain.Document{
	{Filename: "product_specs.md", Content: []byte("# Discount codes\n\nThe code SAVE15 applies a 15% discount to the cart total.")},
	{Filename: "checkout.html", Content: []byte(`<form id="checkout-form"><input id="discount-code" name="coupon"><button id="apply-btn" class="btn">Apply discount</button></form>`)},
	{Filename: "broken.pdf", Content: []byte("not a pdf")},
}

func ingest(t *testing.T, s *testServer) domain.IngestReport {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/v1/documents", map[string]any{"documents": sampleDocs})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report domain.IngestReport
	redecode(t, resp.Data, &report)
	return report
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec, resp := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestIngestAndStats(t *testing.T) {
	s := newTestServer(t, "")

	report := ingest(t, s)
	assert.Equal(t, 2, report.TotalFiles)
	assert.Equal(t, 1, report.DocTypes[domain.DocTypeHTMLDOM])
	require.Len(t, report.Files, 3)
	assert.NotEmpty(t, report.Files[2].Error)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/knowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats knowledge.Stats
	redecode(t, resp.Data, &stats)
	assert.Equal(t, report.TotalChunks, stats.TotalEntries)
	assert.Equal(t, "memory", stats.Backend)

	// ingesting again with reset does not accumulate
	rec, resp = s.do(t, http.MethodPost, "/api/v1/documents", map[string]any{"reset": true, "documents": sampleDocs})
	require.Equal(t, http.StatusOK, rec.Code)
	_, resp = s.do(t, http.MethodGet, "/api/v1/knowledge", nil)
	redecode(t, resp.Data, &stats)
	assert.Equal(t, report.TotalChunks, stats.TotalEntries)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/knowledge", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, resp = s.do(t, http.MethodGet, "/api/v1/knowledge", nil)
	redecode(t, resp.Data, &stats)
	assert.Zero(t, stats.TotalEntries)
}

func TestIngest_Validation(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"no documents", `{"documents":[]}`},
		{"missing filename", `{"documents":[{"content":"aGk="}]}`},
		{"bad base64", `{"documents":[{"filename":"a.txt","content":"%%%"}]}`},
		{"unknown field", `{"docs":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), domain.ErrCodeValidation)
		})
	}
}

func TestGenerateTestCases(t *testing.T) {
	s := newTestServer(t, "")
	ingest(t, s)
	s.llm.response = "```json\n[{\"Test_ID\":\"TC-001\",\"Feature\":\"Discount\",\"Test_Scenario\":\"Apply SAVE15\"," +
		"\"Steps\":[\"Enter SAVE15\"],\"Expected_Result\":\"15% off\",\"Grounded_In\":[\"product_specs.md\"]}," +
		"{\"Test_ID\":\"TC-002\",\"Feature\":\"Discount\"}]\n```"

	rec, resp := s.do(t, http.MethodPost, "/api/v1/testcases", map[string]any{"query": "discount code", "k": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result generation.Result
	redecode(t, resp.Data, &result)
	assert.Equal(t, generation.StatusOK, result.Status)
	require.Len(t, result.TestCases, 1)
	assert.Equal(t, "TC-001", result.TestCases[0].TestID)
	assert.Equal(t, 1, result.Dropped)
}

func TestGenerateTestCases_BackendFailureIsDegraded(t *testing.T) {
	s := newTestServer(t, "")
	ingest(t, s)
	s.llm.err = errors.New("quota exceeded")

	rec, resp := s.do(t, http.MethodPost, "/api/v1/testcases", map[string]any{"query": "discount code"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result generation.Result
	redecode(t, resp.Data, &result)
	assert.Equal(t, generation.StatusDegraded, result.Status)
	require.Len(t, result.TestCases, 1)
	assert.True(t, result.TestCases[0].IsDiagnostic())
}

func TestGenerateTestCases_Validation(t *testing.T) {
	s := newTestServer(t, "")

	for _, body := range []map[string]any{{"query": "  "}, {"query": "x", "k": -1}, {"query": "x", "k": 51}} {
		rec, resp := s.do(t, http.MethodPost, "/api/v1/testcases", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, domain.ErrCodeValidation, resp.Error.Code)
	}
	assert.Zero(t, s.llm.calls)
}

func TestGenerateTestCases_GeneratorUnavailable(t *testing.T) {
	s := newTestServer(t, "")
	router := NewRouter(RouterConfig{
		Base: s.base,
		Generator: func() (*generation.Generator, error) {
			return nil, domain.ErrServiceUnavailable("gemini")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/testcases", strings.NewReader(`{"query":"discount"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSynthesizeScripts(t *testing.T) {
	s := newTestServer(t, "")
	ingest(t, s)
	s.llm.response = "```typescript\nawait page.locator('#apply-btn').click();\n```"

	cases := []domain.TestCase{
		{TestID: "TC-001", Feature: "Discount", TestScenario: "Apply SAVE15", ExpectedResult: "15% off", GroundedIn: []string{"product_specs.md"}},
		domain.NewDiagnosticTestCase("Parse Error", "Failed to parse LLM response", nil),
	}
	rec, resp := s.do(t, http.MethodPost, "/api/v1/scripts", map[string]any{"framework": "playwright-ts", "test_cases": cases})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Framework domain.ScriptFramework   `json:"framework"`
		Scripts   []domain.GeneratedScript `json:"scripts"`
		Skipped   int                      `json:"skipped"`
	}
	redecode(t, resp.Data, &out)
	assert.Equal(t, domain.FrameworkPlaywrightTS, out.Framework)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, out.Scripts, 1)
	assert.Contains(t, out.Scripts[0].Source, "// Test ID: TC-001")
	assert.Contains(t, out.Scripts[0].Source, "page.locator('#apply-btn')")
	assert.Empty(t, out.Scripts[0].UnverifiedSelectors)
}

func TestSynthesizeScripts_Validation(t *testing.T) {
	s := newTestServer(t, "")

	rec, _ := s.do(t, http.MethodPost, "/api/v1/scripts", map[string]any{"test_cases": []domain.TestCase{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/scripts", map[string]any{
		"framework":  "cypress",
		"test_cases": []domain.TestCase{{TestID: "TC-1"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, "secret")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/knowledge", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays public
	rec, _ = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	ingest(t, s)

	rec, _ := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_documents_ingested_total{doc_type="html_dom",status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="POST",path="/api/v1/documents",status="200"} 1`)
}
