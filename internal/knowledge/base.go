// Package knowledge builds the documentation knowledge base and answers
// retrieval queries against it.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/chunker"
	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/embedding"
	"github.com/testforge/docforge/internal/normalize"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/vectorstore"
)

// RetrievedChunk is a chunk returned by a query, most relevant first.
type RetrievedChunk struct {
	ChunkID        string         `json:"chunk_id"`
	Text           string         `json:"text"`
	SourceDocument string         `json:"source_document"`
	DocType        domain.DocType `json:"doc_type"`
	ChunkIndex     int            `json:"chunk_index"`
	Distance       float64        `json:"distance"`
}

// Stats describes the current store contents.
type Stats struct {
	TotalEntries   int    `json:"total_entries"`
	Backend        string `json:"backend"`
	EmbeddingModel string `json:"embedding_model"`
}

// Base owns the store and the single embedder used for both ingestion and
// queries, so stored and query vectors always share one space.
type Base struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	splitter *chunker.Splitter
	metrics  *observability.Metrics
	logger   *zap.Logger

	// serializes builds so chunk counters seeded from the store stay unique
	mu sync.Mutex
}

// NewBase creates a knowledge base. splitter, metrics and logger may be nil.
func NewBase(store vectorstore.Store, embedder embedding.Embedder, splitter *chunker.Splitter, metrics *observability.Metrics, logger *zap.Logger) *Base {
	if splitter == nil {
		splitter = chunker.NewSplitter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Ingest normalizes, chunks, embeds and stores each document. A failing file
// is recorded in the report and the rest of the batch continues.
func (b *Base) Ingest(ctx context.Context, docs []domain.Document) *domain.IngestReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := domain.NewIngestReport(uuid.New().String())
	log := b.logger.With(zap.String("build_id", report.BuildID))

	start, err := b.store.LastChunkNumber(ctx)
	if err != nil {
		storeErr := domain.ErrStore("last chunk number", err)
		for _, doc := range docs {
			report.Record(domain.FileResult{Filename: doc.Filename, Error: storeErr.Error()})
			b.metrics.RecordIngestedDocument("", 0, true)
		}
		report.Duration = time.Since(report.StartedAt)
		log.Error("knowledge store unavailable", zap.Error(err))
		return report
	}

	builder := chunker.NewBuilder(b.splitter, start)
	for _, doc := range docs {
		res := b.ingestOne(ctx, builder, doc)
		report.Record(res)
		b.metrics.RecordIngestedDocument(string(res.DocType), res.Chunks, res.Failed())

		if res.Failed() {
			log.Warn("file skipped", zap.String("filename", doc.Filename), zap.String("error", res.Error))
			continue
		}
		log.Debug("file ingested",
			zap.String("filename", doc.Filename),
			zap.String("doc_type", string(res.DocType)),
			zap.Int("chunks", res.Chunks),
		)
	}

	report.Duration = time.Since(report.StartedAt)
	log.Info("knowledge base built",
		zap.Int("files", report.TotalFiles),
		zap.Int("chunks", report.TotalChunks),
		zap.Int("failed", len(report.Failures())),
		zap.Duration("duration", report.Duration),
	)
	return report
}

func (b *Base) ingestOne(ctx context.Context, builder *chunker.Builder, doc domain.Document) domain.FileResult {
	res := domain.FileResult{Filename: doc.Filename}
	if err := ctx.Err(); err != nil {
		res.Error = domain.ErrIngestion(doc.Filename, err).Error()
		return res
	}

	norm, err := normalize.Normalize(doc.Filename, doc.Content)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.DocType = norm.DocType

	chunks := builder.Chunk(norm.Text, doc.Filename, norm.DocType)
	if len(chunks) == 0 {
		return res
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		res.Error = domain.ErrEmbedding(err).Error()
		return res
	}
	if len(vecs) != len(chunks) {
		res.Error = domain.ErrEmbedding(fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(chunks))).Error()
		return res
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorstore.EntryFromChunk(c, vecs[i])
	}
	n, err := b.store.Add(ctx, entries)
	if err != nil {
		res.Error = domain.ErrIngestion(doc.Filename, err).Error()
		return res
	}

	res.Chunks = n
	return res
}

// Retrieve returns the k chunks nearest to query.
func (b *Base) Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	return b.RetrieveFiltered(ctx, query, k, vectorstore.Filter{})
}

// RetrieveFiltered returns the k nearest chunks whose metadata matches filter.
func (b *Base) RetrieveFiltered(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]RetrievedChunk, error) {
	if k <= 0 {
		return nil, domain.ErrValidationField("k", "k must be positive")
	}
	start := time.Now()
	defer func() { b.metrics.RecordRetrieval(!filter.IsZero(), time.Since(start)) }()

	vec, err := embedding.EmbedOne(ctx, b.embedder, query)
	if err != nil {
		return nil, domain.ErrEmbedding(err)
	}

	results, err := b.store.Query(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}

	out := make([]RetrievedChunk, len(results))
	for i, r := range results {
		out[i] = RetrievedChunk{
			ChunkID:        r.ID,
			Text:           r.Text,
			SourceDocument: r.Metadata.SourceDocument,
			DocType:        r.Metadata.DocType,
			ChunkIndex:     r.Metadata.ChunkIndex,
			Distance:       r.Distance,
		}
	}
	return out, nil
}

// Reset removes every stored entry.
func (b *Base) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.Reset(ctx); err != nil {
		return domain.ErrStore("reset", err)
	}
	b.logger.Info("knowledge base reset", zap.String("backend", b.store.Backend()))
	return nil
}

// Stats reports the store size, backend and embedding model.
func (b *Base) Stats(ctx context.Context) (Stats, error) {
	n, err := b.store.Count(ctx)
	if err != nil {
		return Stats{}, domain.ErrStore("count", err)
	}
	return Stats{
		TotalEntries:   n,
		Backend:        b.store.Backend(),
		EmbeddingModel: b.embedder.Model(),
	}, nil
}

// Compile renders retrieved chunks as a numbered context block, rank order
// preserved.
func Compile(chunks []RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Source %d: %s (%s)]\n%s\n", i+1, c.SourceDocument, c.DocType, c.Text)
	}
	return strings.Join(blocks, "\n---\n")
}

// Sources lists the distinct source documents of chunks in first-seen order.
func Sources(chunks []RetrievedChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var out []string
	for _, c := range chunks {
		if seen[c.SourceDocument] {
			continue
		}
		seen[c.SourceDocument] = true
		out = append(out, c.SourceDocument)
	}
	return out
}
