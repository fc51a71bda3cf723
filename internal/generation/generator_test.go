package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/llm"
	"github.com/testforge/docforge/internal/observability"
)

type fakeClient struct {
	response string
	err      error

	system string
	user   string
}

func (f *fakeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *llm.Usage, error) {
	f.system, f.user = systemPrompt, userPrompt
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &llm.Usage{InputTokens: 100, OutputTokens: 20}, nil
}

var chunks = []knowledge.RetrievedChunk{
	{Text: "Discount code SAVE15 gives 15% off.", SourceDocument: "product_specs.md", DocType: domain.DocTypeSpec, Distance: 0.1},
	{Text: "POST /apply_coupon", SourceDocument: "api_endpoints.json", DocType: domain.DocTypeAPI, Distance: 0.3},
}

const validCase = `{"Test_ID":"TC-001","Feature":"Discount","Test_Scenario":"Apply SAVE15","Steps":["Enter code","Click apply"],"Expected_Result":"15% off","Grounded_In":["product_specs.md"]}`

func TestGenerate_FencedArray(t *testing.T) {
	client := &fakeClient{response: "```json\n[" + validCase + "]\n```"}
	res := NewGenerator(client, nil, nil).Generate(context.Background(), "generate discount tests", chunks)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, StateParsedOK, res.State)
	require.Len(t, res.TestCases, 1)
	tc := res.TestCases[0]
	assert.Equal(t, "TC-001", tc.TestID)
	assert.Equal(t, []string{"Enter code", "Click apply"}, tc.Steps)
	assert.Equal(t, []string{"product_specs.md"}, tc.GroundedIn)
	assert.Empty(t, res.Ungrounded)
	assert.Equal(t, 100, res.Usage.InputTokens)
}

func TestGenerate_DropsRecordMissingGroundedIn(t *testing.T) {
	missing := `{"Test_ID":"TC-002","Feature":"Discount","Test_Scenario":"x","Expected_Result":"y"}`

	full := NewGenerator(&fakeClient{response: "[" + validCase + "," + validCase + "]"}, nil, nil).
		Generate(context.Background(), "q", chunks)
	partial := NewGenerator(&fakeClient{response: "[" + validCase + "," + missing + "]"}, nil, nil).
		Generate(context.Background(), "q", chunks)

	assert.Len(t, full.TestCases, 2)
	assert.Len(t, partial.TestCases, 1)
	assert.Equal(t, 1, partial.Dropped)
	assert.Equal(t, StatusOK, partial.Status)
}

func TestGenerate_BackendFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	client := &fakeClient{err: errors.New("quota exceeded")}

	res := NewGenerator(client, metrics, nil).Generate(context.Background(), "q", chunks)

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, StateModelFailed, res.State)
	require.Len(t, res.TestCases, 1)
	tc := res.TestCases[0]
	assert.Equal(t, domain.DiagnosticTestID, tc.TestID)
	assert.Equal(t, []string{domain.DiagnosticSource}, tc.GroundedIn)
	assert.Equal(t, "Generation Error", tc.Feature)
	assert.Contains(t, tc.TestScenario, "quota exceeded")
	assert.Equal(t, tc.TestScenario, res.Failure)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Generations.WithLabelValues("degraded", "MODEL_FAILED")))
}

func TestGenerate_ParseFailure(t *testing.T) {
	raw := "Sure! Here are your test cases: " + strings.Repeat("x", 300)
	res := NewGenerator(&fakeClient{response: raw}, nil, nil).Generate(context.Background(), "q", chunks)

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, StateParseFailed, res.State)
	require.Len(t, res.TestCases, 1)
	tc := res.TestCases[0]
	assert.Equal(t, "Parse Error", tc.Feature)
	assert.Equal(t, "Valid JSON", tc.ExpectedResult)
	require.Len(t, tc.Steps, 2)
	assert.Equal(t, "Raw content: "+raw[:200], tc.Steps[1])
}

func TestGenerate_Prompts(t *testing.T) {
	client := &fakeClient{response: "[]"}
	res := NewGenerator(client, nil, nil).Generate(context.Background(), "generate checkout tests", chunks)

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.TestCases)
	assert.Equal(t, []string{"product_specs.md", "api_endpoints.json"}, res.Sources)

	assert.Contains(t, client.system, `"Grounded_In"`)
	assert.Contains(t, client.system, "ONLY valid JSON")
	assert.True(t, strings.HasPrefix(client.user, "Based on the following documentation excerpts, generate checkout tests"))
	assert.Contains(t, client.user, knowledge.Compile(chunks))
	assert.Contains(t, client.user, "AVAILABLE SOURCE DOCUMENTS:\nproduct_specs.md, api_endpoints.json")
}

func TestGenerate_Ungrounded(t *testing.T) {
	invented := `{"Test_ID":"TC-009","Feature":"Gift cards","Test_Scenario":"x","Expected_Result":"y","Grounded_In":["gift_cards.md"]}`
	res := NewGenerator(&fakeClient{response: "[" + validCase + "," + invented + "]"}, nil, nil).
		Generate(context.Background(), "q", chunks)

	assert.Len(t, res.TestCases, 2)
	assert.Equal(t, []string{"TC-009"}, res.Ungrounded)
}

type fakeRetriever struct {
	chunks []knowledge.RetrievedChunk
	err    error
}

func (f fakeRetriever) Retrieve(ctx context.Context, query string, k int) ([]knowledge.RetrievedChunk, error) {
	return f.chunks, f.err
}

func TestRun(t *testing.T) {
	client := &fakeClient{response: "[" + validCase + "]"}
	g := NewGenerator(client, nil, nil)

	res := g.Run(context.Background(), fakeRetriever{chunks: chunks}, "q", 6)
	assert.Equal(t, StatusOK, res.Status)

	res = g.Run(context.Background(), fakeRetriever{err: domain.ErrEmbedding(errors.New("down"))}, "q", 6)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, StatePending, res.State)
	require.Len(t, res.TestCases, 1)
	assert.True(t, res.TestCases[0].IsDiagnostic())
}
