// Package generation turns retrieved documentation into grounded test cases
// through a text generation backend.
package generation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/llm"
	"github.com/testforge/docforge/internal/observability"
)

// State is the stage a generation reached.
type State string

const (
	StatePending         State = "PENDING"
	StateContextCompiled State = "CONTEXT_COMPILED"
	StateModelInvoked    State = "MODEL_INVOKED"
	StateParsedOK        State = "PARSED_OK"
	StateParseFailed     State = "PARSE_FAILED"
	StateModelFailed     State = "MODEL_FAILED"
)

// Status tells callers whether TestCases holds real cases or a diagnostic.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// rawPreviewLen bounds the raw response quoted in a parse diagnostic.
const rawPreviewLen = 200

// Result is the outcome of one generation. It is always usable: a failed
// run carries exactly one diagnostic test case.
type Result struct {
	Status    Status            `json:"status"`
	State     State             `json:"state"`
	TestCases []domain.TestCase `json:"test_cases"`

	// Dropped counts records discarded for missing mandatory keys.
	Dropped int `json:"dropped"`

	// Ungrounded lists test IDs citing a source outside the retrieved set.
	Ungrounded []string `json:"ungrounded,omitempty"`

	Failure string     `json:"failure,omitempty"`
	Sources []string   `json:"sources"`
	Usage   *llm.Usage `json:"usage,omitempty"`
}

// Retriever is the part of the knowledge base the generator queries.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.RetrievedChunk, error)
}

// Generator runs the grounded generation contract against a backend.
type Generator struct {
	client  llm.Client
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewGenerator creates a generator. metrics and logger may be nil.
func NewGenerator(client llm.Client, metrics *observability.Metrics, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, metrics: metrics, logger: logger}
}

// Run retrieves k chunks for query and generates from them. A retrieval
// failure becomes a diagnostic result.
func (g *Generator) Run(ctx context.Context, r Retriever, query string, k int) *Result {
	chunks, err := r.Retrieve(ctx, query, k)
	if err != nil {
		res := &Result{State: StatePending, Sources: []string{}}
		g.fail(res, StatePending, generationError(err))
		g.logger.Warn("retrieval failed", zap.String("query", query), zap.Error(err))
		return res
	}
	return g.Generate(ctx, query, chunks)
}

// Generate asks the backend for test cases grounded in chunks.
func (g *Generator) Generate(ctx context.Context, query string, chunks []knowledge.RetrievedChunk) *Result {
	res := &Result{State: StatePending}

	compiled := knowledge.Compile(chunks)
	res.Sources = knowledge.Sources(chunks)
	if res.Sources == nil {
		res.Sources = []string{}
	}
	res.State = StateContextCompiled
	g.logger.Debug("context compiled",
		zap.Int("chunks", len(chunks)),
		zap.Int("context_chars", len(compiled)),
	)

	res.State = StateModelInvoked
	raw, usage, err := g.client.Complete(ctx, systemPrompt, userPrompt(query, compiled, res.Sources))
	res.Usage = usage
	if err != nil {
		g.fail(res, StateModelFailed, generationError(err))
		g.logger.Warn("generation failed", zap.String("query", query), zap.Error(err))
		return res
	}

	content := llm.StripFence(raw)
	cases, dropped, err := ParseTestCases(content)
	if err != nil {
		g.fail(res, StateParseFailed, parseError(err, content))
		g.logger.Warn("model output is not JSON", zap.String("query", query), zap.Error(err))
		return res
	}

	res.Status = StatusOK
	res.State = StateParsedOK
	res.TestCases = cases
	res.Dropped = dropped
	res.Ungrounded = ungrounded(cases, res.Sources)
	g.metrics.RecordGeneration(string(res.Status), string(res.State), res.Dropped)

	g.logger.Info("test cases generated",
		zap.String("query", query),
		zap.Int("cases", len(cases)),
		zap.Int("dropped", dropped),
		zap.Int("chunks", len(chunks)),
	)
	if len(res.Ungrounded) > 0 {
		g.logger.Warn("test cases cite sources outside the retrieved context",
			zap.Strings("test_ids", res.Ungrounded))
	}
	return res
}

func (g *Generator) fail(res *Result, state State, diagnostic domain.TestCase) {
	res.Status = StatusDegraded
	res.State = state
	res.Failure = diagnostic.TestScenario
	res.TestCases = []domain.TestCase{diagnostic}
	g.metrics.RecordGeneration(string(res.Status), string(res.State), 0)
}

func generationError(err error) domain.TestCase {
	tc := domain.NewDiagnosticTestCase(
		"Generation Error",
		fmt.Sprintf("Failed to generate test cases: %v", err),
		[]string{"Check API key", "Check connection"},
	)
	tc.ExpectedResult = "Successful generation"
	return tc
}

func parseError(err error, content string) domain.TestCase {
	preview := []rune(content)
	if len(preview) > rawPreviewLen {
		preview = preview[:rawPreviewLen]
	}
	tc := domain.NewDiagnosticTestCase(
		"Parse Error",
		fmt.Sprintf("Failed to parse LLM response: %v", err),
		[]string{"Check LLM output format", "Raw content: " + string(preview)},
	)
	tc.ExpectedResult = "Valid JSON"
	return tc
}

// ungrounded returns the IDs of cases citing a source not in sources.
func ungrounded(cases []domain.TestCase, sources []string) []string {
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[s] = true
	}
	var ids []string
	for _, tc := range cases {
		for _, src := range tc.GroundedIn {
			if !known[src] {
				ids = append(ids, tc.TestID)
				break
			}
		}
	}
	return ids
}
