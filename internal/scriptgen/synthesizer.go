// Package scriptgen turns test cases into executable UI test scripts that
// use only selectors retrieved from the knowledge base.
package scriptgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/llm"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/vectorstore"
)

// Retriever is the part of the knowledge base the synthesizer queries.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.RetrievedChunk, error)
	RetrieveFiltered(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]knowledge.RetrievedChunk, error)
}

// Config holds synthesis settings
type Config struct {
	Framework domain.ScriptFramework
	SelectorK int
	DocK      int

	// MinDelay is the minimum spacing between backend calls in SynthesizeAll.
	MinDelay time.Duration
}

// DefaultConfig returns default synthesis settings
func DefaultConfig() Config {
	return Config{
		Framework: domain.FrameworkSeleniumPython,
		SelectorK: 5,
		DocK:      3,
		MinDelay:  4 * time.Second,
	}
}

// Synthesizer generates one script per test case.
type Synthesizer struct {
	retriever Retriever
	client    llm.Client
	config    Config
	metrics   *observability.Metrics
	logger    *zap.Logger

	onProgress func(done, total int)
}

// NewSynthesizer creates a synthesizer. metrics and logger may be nil.
func NewSynthesizer(retriever Retriever, client llm.Client, config Config, metrics *observability.Metrics, logger *zap.Logger) *Synthesizer {
	defaults := DefaultConfig()
	if !config.Framework.IsValid() {
		config.Framework = defaults.Framework
	}
	if config.SelectorK <= 0 {
		config.SelectorK = defaults.SelectorK
	}
	if config.DocK <= 0 {
		config.DocK = defaults.DocK
	}
	if config.MinDelay < 0 {
		config.MinDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		retriever: retriever,
		client:    client,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetProgressCallback sets a callback invoked by SynthesizeAll after each
// script.
func (s *Synthesizer) SetProgressCallback(fn func(done, total int)) {
	s.onProgress = fn
}

// Framework returns the framework scripts are written for
func (s *Synthesizer) Framework() domain.ScriptFramework {
	return s.config.Framework
}

// Synthesize produces the script for tc. It never fails: backend errors and
// empty output yield a fallback script documenting the failure.
func (s *Synthesizer) Synthesize(ctx context.Context, tc domain.TestCase) domain.GeneratedScript {
	log := s.logger.With(zap.String("test_id", tc.TestID))

	selectorChunks := s.selectorEvidence(ctx, log)
	docChunks := s.docEvidence(ctx, tc, log)

	prompt, err := s.userPrompt(tc, selectorChunks, docChunks)
	if err != nil {
		return s.fallback(tc, err, log)
	}

	raw, _, err := s.client.Complete(ctx, s.systemPrompt(), prompt)
	if err != nil {
		return s.fallback(tc, err, log)
	}

	body := llm.StripFence(raw)
	if body == "" {
		return s.fallback(tc, fmt.Errorf("backend returned an empty script"), log)
	}

	script := domain.GeneratedScript{
		TestCaseID: tc.TestID,
		Source:     header(s.config.Framework, tc) + body + "\n",
		Framework:  s.config.Framework,
	}
	script.UnverifiedSelectors = Audit(body, selectorChunks)
	if len(script.UnverifiedSelectors) > 0 {
		log.Warn("script uses selectors missing from the retrieved evidence",
			zap.Strings("selectors", script.UnverifiedSelectors))
	}

	s.metrics.RecordScript(string(s.config.Framework), false)
	log.Info("script generated",
		zap.String("framework", string(s.config.Framework)),
		zap.Int("selector_chunks", len(selectorChunks)),
		zap.Int("doc_chunks", len(docChunks)),
	)
	return script
}

// SynthesizeAll generates scripts sequentially, spacing backend calls at
// least MinDelay apart. Cases left when ctx ends get fallback scripts.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, cases []domain.TestCase) []domain.GeneratedScript {
	limit := rate.Inf
	if s.config.MinDelay > 0 {
		limit = rate.Every(s.config.MinDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	scripts := make([]domain.GeneratedScript, 0, len(cases))
	for _, tc := range cases {
		if err := limiter.Wait(ctx); err != nil {
			scripts = append(scripts, s.fallback(tc, err, s.logger.With(zap.String("test_id", tc.TestID))))
		} else {
			scripts = append(scripts, s.Synthesize(ctx, tc))
		}
		if s.onProgress != nil {
			s.onProgress(len(scripts), len(cases))
		}
	}
	return scripts
}

func (s *Synthesizer) selectorEvidence(ctx context.Context, log *zap.Logger) []knowledge.RetrievedChunk {
	chunks, err := s.retriever.RetrieveFiltered(ctx, CanonicalSelectorQuery, s.config.SelectorK,
		vectorstore.Filter{DocType: domain.DocTypeHTMLDOM})
	if err != nil {
		log.Warn("selector retrieval failed, continuing without selector evidence", zap.Error(err))
		return nil
	}
	return chunks
}

func (s *Synthesizer) docEvidence(ctx context.Context, tc domain.TestCase, log *zap.Logger) []knowledge.RetrievedChunk {
	chunks, err := s.retriever.Retrieve(ctx, tc.Feature+" "+tc.TestScenario, s.config.DocK)
	if err != nil {
		log.Warn("documentation retrieval failed, continuing without doc evidence", zap.Error(err))
		return nil
	}
	return chunks
}

func (s *Synthesizer) systemPrompt() string {
	if s.config.Framework == domain.FrameworkPlaywrightTS {
		return playwrightSystemPrompt
	}
	return seleniumSystemPrompt
}

func (s *Synthesizer) userPrompt(tc domain.TestCase, selectorChunks, docChunks []knowledge.RetrievedChunk) (string, error) {
	tcJSON, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding test case: %w", err)
	}

	var b strings.Builder
	err = userPromptTemplates[s.config.Framework].Execute(&b, promptData{
		TestCase:  string(tcJSON),
		Selectors: SelectorContext(selectorChunks),
		Docs:      DocContext(docChunks),
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return b.String(), nil
}

func (s *Synthesizer) fallback(tc domain.TestCase, err error, log *zap.Logger) domain.GeneratedScript {
	log.Warn("script generation failed, using fallback", zap.Error(err))
	s.metrics.RecordScript(string(s.config.Framework), true)
	return domain.GeneratedScript{
		TestCaseID: tc.TestID,
		Source:     fallbackScript(s.config.Framework, tc, err.Error()),
		Framework:  s.config.Framework,
		Degraded:   true,
	}
}

// SelectorContext concatenates selector chunks, each followed by a blank line.
func SelectorContext(chunks []knowledge.RetrievedChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// DocContext renders doc chunks as "[source]\ntext\n\n" blocks.
func DocContext(chunks []knowledge.RetrievedChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", c.SourceDocument, c.Text)
	}
	return b.String()
}
