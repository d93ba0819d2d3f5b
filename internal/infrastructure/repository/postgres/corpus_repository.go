package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const genericStyle = "generic"

// CorpusRepository maps corpus ids to document style tags. Lookups go through
// a small expiring cache; misses and lookup failures answer "generic".
type CorpusRepository struct {
	db     *sql.DB
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

func NewCorpusRepository(db *sql.DB, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *CorpusRepository {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusRepository{
		db:     db,
		cache:  expirable.NewLRU[string, string](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CorpusRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS corpora (
	id TEXT PRIMARY KEY,
	style TEXT NOT NULL DEFAULT 'generic',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CorpusRepository) Classify(ctx context.Context, corpusID string) string {
	corpusID = strings.TrimSpace(corpusID)
	if corpusID == "" {
		return genericStyle
	}
	if style, ok := r.cache.Get(corpusID); ok {
		return style
	}

	var style sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT style FROM corpora WHERE id = $1`, corpusID).Scan(&style)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.cache.Add(corpusID, genericStyle)
		return genericStyle
	case err != nil:
		// Not cached: the next request retries the lookup.
		r.logger.Warn("corpus_style_lookup_failed",
			slog.String("corpus_id", corpusID),
			slog.String("error", err.Error()))
		return genericStyle
	}

	value := strings.ToLower(strings.TrimSpace(style.String))
	if value == "" {
		value = genericStyle
	}
	r.cache.Add(corpusID, value)
	return value
}

// SetStyle upserts the style of a corpus and refreshes the cache entry.
func (r *CorpusRepository) SetStyle(ctx context.Context, corpusID, style string) error {
	corpusID = strings.TrimSpace(corpusID)
	style = strings.ToLower(strings.TrimSpace(style))
	if corpusID == "" || style == "" {
		return fmt.Errorf("corpus id and style are required")
	}
	const query = `
INSERT INTO corpora (id, style, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET style = EXCLUDED.style, updated_at = EXCLUDED.updated_at
`
	if _, err := r.db.ExecContext(ctx, query, corpusID, style, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert corpus style: %w", err)
	}
	r.cache.Add(corpusID, style)
	return nil
}
