package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/sync/errgroup"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

// Ensure Store implements search.Searcher at compile time.
var _ search.Searcher = (*Store)(nil)

// ddlListings returns the listings DDL with the embedding dimension baked
// into the vector column type.
func ddlListings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS listings (
    id             TEXT         PRIMARY KEY,
    address        TEXT         NOT NULL,
    area           TEXT         NOT NULL DEFAULT '',
    bedrooms       INT          NOT NULL DEFAULT 0,
    rent           INT          NOT NULL DEFAULT 0,
    available_from TIMESTAMPTZ,
    description    TEXT         NOT NULL DEFAULT '',
    embedding      vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_listings_area     ON listings (area);
CREATE INDEX IF NOT EXISTS idx_listings_bedrooms ON listings (bedrooms);

CREATE INDEX IF NOT EXISTS idx_listings_embedding
    ON listings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Store is the PostgreSQL-backed listing store. Listings are embedded on
// upsert and searched by cosine distance against an embedded query.
//
// All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore connects to the database at dsn, registers pgvector types on every
// connection, and ensures the listings schema exists. The vector column
// dimension is taken from embedder.Dimensions().
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("listings: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("listings: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("listings: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlListings(embedder.Dimensions())); err != nil {
		pool.Close()
		return nil, fmt.Errorf("listings: migrate: %w", err)
	}
	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Upsert inserts or fully replaces a listing, re-embedding its text.
func (s *Store) Upsert(ctx context.Context, l Listing) error {
	vec, err := s.embedder.Embed(ctx, l.EmbeddingText())
	if err != nil {
		return fmt.Errorf("listings: embed %s: %w", l.ID, err)
	}
	return s.upsertEmbedded(ctx, l, vec)
}

// UpsertBatch inserts or replaces a batch of listings with one embedding
// call, writing rows concurrently.
func (s *Store) UpsertBatch(ctx context.Context, ls []Listing) error {
	if len(ls) == 0 {
		return nil
	}
	texts := make([]string, len(ls))
	for i, l := range ls {
		texts[i] = l.EmbeddingText()
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("listings: embed batch: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range ls {
		g.Go(func() error {
			return s.upsertEmbedded(ctx, ls[i], vecs[i])
		})
	}
	return g.Wait()
}

func (s *Store) upsertEmbedded(ctx context.Context, l Listing, vec []float32) error {
	const q = `
		INSERT INTO listings
		    (id, address, area, bedrooms, rent, available_from, description, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		    address        = EXCLUDED.address,
		    area           = EXCLUDED.area,
		    bedrooms       = EXCLUDED.bedrooms,
		    rent           = EXCLUDED.rent,
		    available_from = EXCLUDED.available_from,
		    description    = EXCLUDED.description,
		    embedding      = EXCLUDED.embedding`

	var availableFrom any
	if !l.AvailableFrom.IsZero() {
		availableFrom = l.AvailableFrom
	}
	_, err := s.pool.Exec(ctx, q,
		l.ID, l.Address, l.Area, l.Bedrooms, l.Rent, availableFrom, l.Description,
		pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("listings: upsert %s: %w", l.ID, err)
	}
	return nil
}

// Get returns the listing with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Listing, error) {
	const q = `
		SELECT id, address, area, bedrooms, rent, available_from, description
		FROM   listings
		WHERE  id = $1`

	var (
		l             Listing
		availableFrom *time.Time
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&l.ID, &l.Address, &l.Area, &l.Bedrooms, &l.Rent, &availableFrom, &l.Description,
	)
	if err != nil {
		return Listing{}, fmt.Errorf("listings: get %s: %w", id, err)
	}
	if availableFrom != nil {
		l.AvailableFrom = *availableFrom
	}
	return l, nil
}

// Query implements [search.Searcher]: the text is embedded and listings are
// ranked by ascending cosine distance. The score reported is 1 - distance.
func (s *Store) Query(ctx context.Context, text string, topK int) ([]search.Result, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("listings: embed query: %w", err)
	}

	const q = `
		SELECT id, address, area, bedrooms, rent, description,
		       embedding <=> $1 AS distance
		FROM   listings
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("listings: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (search.Result, error) {
		var (
			l        Listing
			distance float64
		)
		if err := row.Scan(&l.ID, &l.Address, &l.Area, &l.Bedrooms, &l.Rent, &l.Description, &distance); err != nil {
			return search.Result{}, err
		}
		return search.Result{
			ID:    l.ID,
			Score: 1 - distance,
			Text:  l.EmbeddingText(),
			Metadata: map[string]any{
				"address":  l.Address,
				"area":     l.Area,
				"bedrooms": l.Bedrooms,
				"rent":     l.Rent,
			},
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listings: scan rows: %w", err)
	}
	return results, nil
}
