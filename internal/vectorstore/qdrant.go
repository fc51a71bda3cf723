package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/testforge/docforge/internal/domain"
	"go.uber.org/zap"
)

// pointNamespace derives stable Qdrant point IDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c1f0e-3a7b-5d0e-9c57-1d2b3c4d5e6f")

// PointID maps a chunk ID to the UUIDv5 used as its Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// QdrantConfig holds Qdrant configuration
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a Store backed by a Qdrant collection over its REST API.
// The collection is created on first Add with the dimension of the first
// vector and uses cosine distance. Chunk IDs travel in the payload.
type QdrantStore struct {
	config     QdrantConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu  sync.Mutex
	dim int
}

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("qdrant: not found")

// NewQdrantStore creates a new Qdrant-backed store
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) *QdrantStore {
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	config.URL = strings.TrimRight(config.URL, "/")
	if config.Collection == "" {
		config.Collection = "documentation_kb"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QdrantStore{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func (q *QdrantStore) Add(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	dim, err := q.dimension(ctx)
	if err != nil {
		return 0, domain.ErrStore("add", err)
	}
	if _, err := checkBatch(entries, dim); err != nil {
		return 0, err
	}
	if dim == 0 {
		if err := q.createCollection(ctx, len(entries[0].Embedding)); err != nil {
			return 0, domain.ErrStore("add", err)
		}
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = PointID(e.ID)
	}
	existing, err := q.retrieve(ctx, ids)
	if err != nil {
		return 0, domain.ErrStore("add", err)
	}
	if len(existing) > 0 {
		return 0, domain.ErrDuplicateEntry(existing[0])
	}

	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{
			ID:     ids[i],
			Vector: e.Embedding,
			Payload: map[string]interface{}{
				"chunk_id":        e.ID,
				"text":            e.Text,
				"source_document": e.Metadata.SourceDocument,
				"doc_type":        string(e.Metadata.DocType),
				"chunk_index":     e.Metadata.ChunkIndex,
			},
		}
	}

	payload := map[string]interface{}{"points": points}
	if _, err := q.request(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), payload); err != nil {
		return 0, domain.ErrStore("add", fmt.Errorf("upserting points: %w", err))
	}
	return len(entries), nil
}

func (q *QdrantStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	dim, err := q.dimension(ctx)
	if err != nil {
		return nil, domain.ErrStore("query", err)
	}
	if dim == 0 {
		return []Result{}, nil
	}
	if dim != len(embedding) {
		return nil, domain.ErrEmbeddingMismatch(dim, len(embedding))
	}

	payload := map[string]interface{}{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		payload["filter"] = f
	}

	resp, err := q.request(ctx, http.MethodPost, q.collectionPath("/points/search"), payload)
	if err != nil {
		return nil, domain.ErrStore("query", fmt.Errorf("searching points: %w", err))
	}

	var result struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, domain.ErrStore("query", fmt.Errorf("parsing search results: %w", err))
	}

	results := make([]Result, 0, len(result.Result))
	for _, r := range result.Result {
		results = append(results, Result{
			ID:   getString(r.Payload, "chunk_id"),
			Text: getString(r.Payload, "text"),
			Metadata: Metadata{
				SourceDocument: getString(r.Payload, "source_document"),
				DocType:        domain.DocType(getString(r.Payload, "doc_type")),
				ChunkIndex:     getInt(r.Payload, "chunk_index"),
			},
			Distance: 1 - r.Score,
		})
	}
	return results, nil
}

// Reset drops the collection. The next Add re-creates it.
func (q *QdrantStore) Reset(ctx context.Context) error {
	_, err := q.request(ctx, http.MethodDelete, q.collectionPath(""), nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return domain.ErrStore("reset", fmt.Errorf("deleting collection: %w", err))
	}

	q.mu.Lock()
	q.dim = 0
	q.mu.Unlock()
	return nil
}

func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	resp, err := q.request(ctx, http.MethodPost, q.collectionPath("/points/count"), map[string]interface{}{"exact": true})
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.ErrStore("count", err)
	}

	var result struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, domain.ErrStore("count", fmt.Errorf("parsing count: %w", err))
	}
	return result.Result.Count, nil
}

// LastChunkNumber scrolls the chunk_id payload of every point.
func (q *QdrantStore) LastChunkNumber(ctx context.Context) (int, error) {
	var ids []string
	var offset interface{}
	for {
		payload := map[string]interface{}{
			"limit":        256,
			"with_payload": []string{"chunk_id"},
			"with_vector":  false,
		}
		if offset != nil {
			payload["offset"] = offset
		}
		resp, err := q.request(ctx, http.MethodPost, q.collectionPath("/points/scroll"), payload)
		if errors.Is(err, errNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, domain.ErrStore("last chunk number", err)
		}

		var result struct {
			Result struct {
				Points []struct {
					Payload map[string]interface{} `json:"payload"`
				} `json:"points"`
				NextPageOffset interface{} `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := json.Unmarshal(resp, &result); err != nil {
			return 0, domain.ErrStore("last chunk number", fmt.Errorf("parsing scroll: %w", err))
		}
		for _, p := range result.Result.Points {
			ids = append(ids, getString(p.Payload, "chunk_id"))
		}
		if result.Result.NextPageOffset == nil {
			break
		}
		offset = result.Result.NextPageOffset
	}
	return maxChunkNumber(ids), nil
}

func (q *QdrantStore) Backend() string { return "qdrant" }

func (q *QdrantStore) Close() error { return nil }

// Health checks the Qdrant server health
func (q *QdrantStore) Health(ctx context.Context) error {
	_, err := q.request(ctx, http.MethodGet, "/healthz", nil)
	return err
}

// dimension returns the collection's vector size, 0 if it does not exist.
func (q *QdrantStore) dimension(ctx context.Context) (int, error) {
	q.mu.Lock()
	if q.dim != 0 {
		defer q.mu.Unlock()
		return q.dim, nil
	}
	q.mu.Unlock()

	resp, err := q.request(ctx, http.MethodGet, q.collectionPath(""), nil)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting collection info: %w", err)
	}

	var result struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("parsing collection info: %w", err)
	}

	q.mu.Lock()
	q.dim = result.Result.Config.Params.Vectors.Size
	q.mu.Unlock()
	return result.Result.Config.Params.Vectors.Size, nil
}

func (q *QdrantStore) createCollection(ctx context.Context, dim int) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if _, err := q.request(ctx, http.MethodPut, q.collectionPath(""), payload); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	// Payload indexes for filtering
	for _, field := range []string{"doc_type", "source_document"} {
		indexPayload := map[string]interface{}{
			"field_name":   field,
			"field_schema": "keyword",
		}
		if _, err := q.request(ctx, http.MethodPut, q.collectionPath("/index"), indexPayload); err != nil {
			q.logger.Warn("failed to create index", zap.String("field", field), zap.Error(err))
		}
	}

	q.mu.Lock()
	q.dim = dim
	q.mu.Unlock()

	q.logger.Info("created Qdrant collection",
		zap.String("collection", q.config.Collection),
		zap.Int("dimension", dim),
	)
	return nil
}

// retrieve returns the chunk IDs of the points that already exist.
func (q *QdrantStore) retrieve(ctx context.Context, pointIDs []string) ([]string, error) {
	payload := map[string]interface{}{
		"ids":          pointIDs,
		"with_payload": []string{"chunk_id"},
		"with_vector":  false,
	}
	resp, err := q.request(ctx, http.MethodPost, q.collectionPath("/points"), payload)
	if err != nil {
		return nil, fmt.Errorf("retrieving points: %w", err)
	}

	var result struct {
		Result []struct {
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parsing points: %w", err)
	}

	ids := make([]string, 0, len(result.Result))
	for _, r := range result.Result {
		ids = append(ids, getString(r.Payload, "chunk_id"))
	}
	return ids, nil
}

func qdrantFilter(f Filter) map[string]interface{} {
	if f.IsZero() {
		return nil
	}
	var must []map[string]interface{}
	if f.DocType != "" {
		must = append(must, map[string]interface{}{
			"key":   "doc_type",
			"match": map[string]interface{}{"value": string(f.DocType)},
		})
	}
	if f.SourceDocument != "" {
		must = append(must, map[string]interface{}{
			"key":   "source_document",
			"match": map[string]interface{}{"value": f.SourceDocument},
		})
	}
	return map[string]interface{}{"must": must}
}

func (q *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + q.config.Collection + suffix
}

func (q *QdrantStore) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.config.URL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if q.config.APIKey != "" {
		req.Header.Set("api-key", q.config.APIKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errNotFound, path)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

var _ Store = (*QdrantStore)(nil)
