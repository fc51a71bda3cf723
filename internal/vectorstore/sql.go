package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/viant/sqlite-vec/vector"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/domain"
)

// Driver names accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps entries in a SQL table as sqlite-vec float32 BLOBs and
// ranks them by brute-force cosine distance in Go. It runs on SQLite (modernc.org/sqlite) or
// PostgreSQL (lib/pq).
type SQLStore struct {
	db     *sqlx.DB
	table  string
	logger *zap.Logger
}

type entryRow struct {
	Seq            int64  `db:"seq"`
	ID             string `db:"id"`
	Text           string `db:"text"`
	SourceDocument string `db:"source_document"`
	DocType        string `db:"doc_type"`
	ChunkIndex     int    `db:"chunk_index"`
	Dims           int    `db:"dims"`
	Embedding      []byte `db:"embedding"`
}

func (r *entryRow) toEntry() (Entry, error) {
	emb, err := vector.DecodeEmbedding(r.Embedding)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: %w", r.ID, err)
	}
	return Entry{
		ID:        r.ID,
		Embedding: emb,
		Text:      r.Text,
		Metadata: Metadata{
			SourceDocument: r.SourceDocument,
			DocType:        domain.DocType(r.DocType),
			ChunkIndex:     r.ChunkIndex,
		},
	}, nil
}

// OpenSQL connects to the database and ensures the entry table exists.
func OpenSQL(ctx context.Context, driver, dsn, table string, logger *zap.Logger) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(ctx, db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects using the PostgreSQL pool settings.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, table string, logger *zap.Logger) (*SQLStore, error) {
	s, err := OpenSQL(ctx, DriverPostgres, cfg.DSN(), table, logger)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(cfg.MaxOpenConns)
	s.db.SetMaxIdleConns(cfg.MaxIdleConns)
	s.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return s, nil
}

// NewSQLStore wraps an open connection. The driver name of db selects the
// column types.
func NewSQLStore(ctx context.Context, db *sqlx.DB, table string, logger *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SQLStore{db: db, table: table, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	var ddl string
	switch s.db.DriverName() {
	case DriverPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS %s (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL,
    source_document TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    dims INTEGER NOT NULL,
    embedding BYTEA NOT NULL
)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS %s (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL,
    source_document TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    dims INTEGER NOT NULL,
    embedding BLOB NOT NULL
)`
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(ddl, s.table)); err != nil {
		return err
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_doc_type_idx ON %s (doc_type)`, s.table, s.table)
	_, err := s.db.ExecContext(ctx, idx)
	return err
}

// DB exposes the connection for health checks.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Add(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	stored := 0
	err := s.transaction(ctx, func(tx *sqlx.Tx) error {
		dim, err := s.dimension(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := checkBatch(entries, dim); err != nil {
			return err
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		q, args, err := sqlx.In(fmt.Sprintf(`SELECT id FROM %s WHERE id IN (?)`, s.table), ids)
		if err != nil {
			return err
		}
		var existing []string
		if err := tx.SelectContext(ctx, &existing, tx.Rebind(q), args...); err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrDuplicateEntry(existing[0])
		}

		insert := fmt.Sprintf(`INSERT INTO %s (id, text, source_document, doc_type, chunk_index, dims, embedding)
VALUES (:id, :text, :source_document, :doc_type, :chunk_index, :dims, :embedding)`, s.table)
		for _, e := range entries {
			blob, err := vector.EncodeEmbedding(e.Embedding)
			if err != nil {
				return err
			}
			row := entryRow{
				ID:             e.ID,
				Text:           e.Text,
				SourceDocument: e.Metadata.SourceDocument,
				DocType:        string(e.Metadata.DocType),
				ChunkIndex:     e.Metadata.ChunkIndex,
				Dims:           len(e.Embedding),
				Embedding:      blob,
			}
			if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
				if isUniqueViolation(err) {
					return domain.ErrDuplicateEntry(e.ID)
				}
				return err
			}
			stored++
		}
		return nil
	})
	if err != nil {
		if domain.IsAppError(err) {
			return 0, err
		}
		return 0, domain.ErrStore("add", err)
	}

	s.logger.Debug("stored entries", zap.String("table", s.table), zap.Int("count", stored))
	return stored, nil
}

func (s *SQLStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	dim, err := s.dimension(ctx, s.db)
	if err != nil {
		return nil, domain.ErrStore("query", err)
	}
	if dim != 0 && dim != len(embedding) {
		return nil, domain.ErrEmbeddingMismatch(dim, len(embedding))
	}

	var (
		where []string
		args  []interface{}
	)
	if filter.DocType != "" {
		where = append(where, "doc_type = ?")
		args = append(args, string(filter.DocType))
	}
	if filter.SourceDocument != "" {
		where = append(where, "source_document = ?")
		args = append(args, filter.SourceDocument)
	}
	q := fmt.Sprintf(`SELECT seq, id, text, source_document, doc_type, chunk_index, dims, embedding FROM %s`, s.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, domain.ErrStore("query", err)
	}

	candidates := make([]Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntry()
		if err != nil {
			return nil, domain.ErrStore("query", err)
		}
		candidates = append(candidates, e)
	}

	start := time.Now()
	results, err := rank(embedding, candidates, k)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ranked entries",
		zap.Int("candidates", len(candidates)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (s *SQLStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return domain.ErrStore("reset", err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, domain.ErrStore("count", err)
	}
	return n, nil
}

func (s *SQLStore) LastChunkNumber(ctx context.Context) (int, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, fmt.Sprintf(`SELECT id FROM %s`, s.table)); err != nil {
		return 0, domain.ErrStore("last chunk number", err)
	}
	return maxChunkNumber(ids), nil
}

func (s *SQLStore) Backend() string { return "sql/" + s.db.DriverName() }

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// dimension returns the stored vector dimension, 0 when the table is empty.
func (s *SQLStore) dimension(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var dims []int
	if err := sqlx.SelectContext(ctx, q, &dims, fmt.Sprintf(`SELECT dims FROM %s ORDER BY seq LIMIT 1`, s.table)); err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

// transaction executes fn within a transaction
func (s *SQLStore) transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

var _ Store = (*SQLStore)(nil)
