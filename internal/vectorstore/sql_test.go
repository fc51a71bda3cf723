package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testforge/docforge/internal/domain"
)

var tableSeq atomic.Int64

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.db")
	table := fmt.Sprintf("kb_%d", tableSeq.Add(1))

	s, err := OpenSQL(context.Background(), DriverSQLite, path, table, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_SQLite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newSQLiteStore(t)
	})
}

func TestSQLStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb.db")

	s, err := OpenSQL(ctx, DriverSQLite, path, "documentation_kb", nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, []Entry{entry("a_1", unit(0.8), domain.DocTypeAPI, "api.json")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQL(ctx, DriverSQLite, path, "documentation_kb", nil)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	res, err := reopened.Query(ctx, []float32{1, 0}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.DocTypeAPI, res[0].Metadata.DocType)
	assert.Equal(t, "sql/sqlite", reopened.Backend())
}

func TestOpenSQL_Rejects(t *testing.T) {
	ctx := context.Background()

	_, err := OpenSQL(ctx, "mysql", "dsn", "kb", nil)
	assert.Error(t, err)

	_, err = OpenSQL(ctx, DriverSQLite, filepath.Join(t.TempDir(), "x.db"), "kb; DROP TABLE x", nil)
	assert.Error(t, err)
}
