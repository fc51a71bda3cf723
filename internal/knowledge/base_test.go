package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/embedding"
	"github.com/testforge/docforge/internal/vectorstore"
)

const checkoutHTML = `<html><body>
<form id="checkout-form">
  <input id="discount-code" name="coupon" class="form-control">
  <button id="pay-btn" class="btn primary">Pay now</button>
</form>
</body></html>`

func newTestBase(t *testing.T) (*Base, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	return NewBase(store, embedding.NewHashEmbedder(64), nil, nil, nil), store
}

func TestBase_Ingest(t *testing.T) {
	base, store := newTestBase(t)
	ctx := context.Background()

	report := base.Ingest(ctx, []domain.Document{
		{Filename: "shipping.txt", Content: []byte("Shipping costs five dollars for standard delivery.")},
		{Filename: "api.json", Content: []byte(`{"endpoint": "/cart", "method": "POST"}`)},
		{Filename: "broken.pdf", Content: []byte("not a pdf")},
		{Filename: "checkout.html", Content: []byte(checkoutHTML)},
	})

	assert.NotEmpty(t, report.BuildID)
	assert.Equal(t, 3, report.TotalFiles)
	require.Len(t, report.Files, 4)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "broken.pdf", report.Failures()[0].Filename)
	assert.Contains(t, report.Failures()[0].Error, domain.ErrCodeNormalization)

	assert.Equal(t, 1, report.DocTypes[domain.DocTypeSpec])
	assert.Equal(t, 1, report.DocTypes[domain.DocTypeAPI])
	assert.Equal(t, 1, report.DocTypes[domain.DocTypeHTMLDOM])

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.TotalChunks, n)
}

func TestBase_IngestAppendsWithoutCollisions(t *testing.T) {
	base, store := newTestBase(t)
	ctx := context.Background()
	doc := domain.Document{Filename: "guide.md", Content: []byte("# Cart\n\nItems stay in the cart for 30 days.")}

	first := base.Ingest(ctx, []domain.Document{doc})
	require.Empty(t, first.Failures())

	second := base.Ingest(ctx, []domain.Document{doc})
	require.Empty(t, second.Failures())
	assert.NotEqual(t, first.BuildID, second.BuildID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.TotalChunks+second.TotalChunks, n)
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

// rejectingEmbedder fails any batch containing marker.
type rejectingEmbedder struct {
	embedding.Embedder
	marker string
}

func (e rejectingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, e.marker) {
			return nil, errors.New("quota exceeded")
		}
	}
	return e.Embedder.Embed(ctx, texts)
}

func TestBase_IngestAfterSkippedFileKeepsIDsUnique(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	base := NewBase(store, rejectingEmbedder{Embedder: embedding.NewHashEmbedder(64), marker: "REJECT"}, nil, nil, nil)
	ctx := context.Background()

	c := domain.Document{Filename: "c.txt", Content: []byte("Refunds are issued within five business days.")}
	first := base.Ingest(ctx, []domain.Document{
		{Filename: "a.txt", Content: []byte("Shipping costs five dollars.")},
		{Filename: "b.txt", Content: []byte("REJECT this whole file.")},
		c,
	})
	require.Len(t, first.Failures(), 1)
	assert.Equal(t, "b.txt", first.Failures()[0].Filename)

	// the skipped file consumed a counter, so c.txt sits above Count
	last, err := store.LastChunkNumber(ctx)
	require.NoError(t, err)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Greater(t, last, count)

	second := base.Ingest(ctx, []domain.Document{c})
	require.Empty(t, second.Failures(), "%+v", second.Files)
	assert.Equal(t, 1, second.Files[0].Chunks)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, count+1, n)
}

func TestBase_IngestEmbeddingFailure(t *testing.T) {
	base := NewBase(vectorstore.NewMemoryStore(), failingEmbedder{embedding.NewHashEmbedder(8)}, nil, nil, nil)

	report := base.Ingest(context.Background(), []domain.Document{
		{Filename: "a.md", Content: []byte("alpha")},
		{Filename: "b.md", Content: []byte("beta")},
	})

	assert.Equal(t, 0, report.TotalFiles)
	require.Len(t, report.Failures(), 2)
	assert.Contains(t, report.Failures()[1].Error, "quota exceeded")
}

func TestBase_Retrieve(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()

	base.Ingest(ctx, []domain.Document{
		{Filename: "shipping.txt", Content: []byte("Shipping costs five dollars for standard delivery")},
		{Filename: "discounts.txt", Content: []byte("Discount codes apply at checkout")},
		{Filename: "checkout.html", Content: []byte(checkoutHTML)},
	})

	got, err := base.Retrieve(ctx, "Discount codes apply at checkout", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "discounts.txt", got[0].SourceDocument)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-5)
	assert.LessOrEqual(t, got[0].Distance, got[1].Distance)

	html, err := base.RetrieveFiltered(ctx, "Discount codes apply at checkout", 5,
		vectorstore.Filter{DocType: domain.DocTypeHTMLDOM})
	require.NoError(t, err)
	require.NotEmpty(t, html)
	for _, c := range html {
		assert.Equal(t, domain.DocTypeHTMLDOM, c.DocType)
	}

	_, err = base.Retrieve(ctx, "cart", 0)
	assert.Equal(t, domain.ErrCodeValidation, domain.GetErrorCode(err))
}

func TestBase_RetrieveDimensionMismatch(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	NewBase(store, embedding.NewHashEmbedder(32), nil, nil, nil).
		Ingest(ctx, []domain.Document{{Filename: "a.md", Content: []byte("cart")}})

	_, err := NewBase(store, embedding.NewHashEmbedder(64), nil, nil, nil).Retrieve(ctx, "cart", 1)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeEmbeddingMismatch, domain.GetErrorCode(err))
}

func TestBase_StatsAndReset(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()

	base.Ingest(ctx, []domain.Document{{Filename: "a.md", Content: []byte("cart")}})

	stats, err := base.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalEntries: 1, Backend: "memory", EmbeddingModel: "hash-64"}, stats)

	require.NoError(t, base.Reset(ctx))
	require.NoError(t, base.Reset(ctx))

	stats, err = base.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
}

func TestCompile(t *testing.T) {
	chunks := []RetrievedChunk{
		{Text: "Coupons stack once.", SourceDocument: "rules.md", DocType: domain.DocTypeSpec},
		{Text: "POST /cart", SourceDocument: "api.json", DocType: domain.DocTypeAPI},
	}

	want := "[Source 1: rules.md (spec)]\nCoupons stack once.\n" +
		"\n---\n" +
		"[Source 2: api.json (api)]\nPOST /cart\n"
	assert.Equal(t, want, Compile(chunks))
	assert.Equal(t, "", Compile(nil))
	assert.Equal(t, 1, strings.Count(Compile(chunks), "---"))
}

func TestSources(t *testing.T) {
	chunks := []RetrievedChunk{
		{SourceDocument: "b.md"}, {SourceDocument: "a.md"}, {SourceDocument: "b.md"},
	}
	assert.Equal(t, []string{"b.md", "a.md"}, Sources(chunks))
}
