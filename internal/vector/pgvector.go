// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PgvectorStore keeps collections as Postgres tables with a pgvector
// embedding column. Payloads are stored as jsonb.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

// NewPgvectorStore opens a connection pool against dsn with pgvector
// types registered on every connection.
func NewPgvectorStore(ctx context.Context, dsn string) (*PgvectorStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedStoreInitialize, err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedStoreInitialize, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedStoreInitialize, err)
	}

	return &PgvectorStore{pool: pool}, nil
}

func (s *PgvectorStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
		collectionName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table '%s': %w", collectionName, err)
	}
	return exists, nil
}

func (s *PgvectorStore) CreateCollection(ctx context.Context, collection Collection) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id uuid PRIMARY KEY, payload jsonb NOT NULL DEFAULT '{}', embedding vector(%d))",
		s.tableName(collection.Name), collection.Dimensions,
	)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table '%s': %w", collection.Name, err)
	}
	return nil
}

func (s *PgvectorStore) CreateIndex(ctx context.Context, collectionName string, index Index) error {
	var with string
	switch index.Type {
	case IndexTypeHNSW:
		with = "USING hnsw (embedding vector_cosine_ops)"
		if index.M > 0 && index.EfConstruct > 0 {
			with += fmt.Sprintf(" WITH (m = %d, ef_construction = %d)", index.M, index.EfConstruct)
		}
	case IndexTypeIVFFlat:
		with = "USING ivfflat (embedding vector_cosine_ops)"
		if index.Lists > 0 {
			with += fmt.Sprintf(" WITH (lists = %d)", index.Lists)
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnsupportedIndexType, index.Type)
	}

	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s %s",
		s.indexName(collectionName, index.Type), s.tableName(collectionName), with)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create index on '%s': %w", collectionName, err)
	}
	return nil
}

// Upsert writes all points in a single transaction, replacing payload
// and embedding on id conflicts.
func (s *PgvectorStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(
		"INSERT INTO %s (id, payload, embedding) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding",
		s.tableName(collectionName),
	)

	for _, point := range points {
		payload, err := json.Marshal(point.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload for point '%s': %w", point.ID, err)
		}

		_, err = tx.Exec(ctx, query, point.ID, payload, pgvector.NewVector(point.Vector))
		if err != nil {
			return fmt.Errorf("failed to upsert point '%s': %w", point.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert transaction: %w", err)
	}
	return nil
}

func (s *PgvectorStore) Query(ctx context.Context, params *QueryParams) ([]*ScoredPoint, error) {
	cols := "id, 1 - (embedding <=> $1) AS score"
	if params.withPayload {
		cols += ", payload"
	}
	if params.withVectors {
		cols += ", embedding"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, s.tableName(params.collection))

	args := []any{pgvector.NewVector(params.query)}
	conds := make([]string, 0)

	for _, filter := range params.filters {
		args = append(args, filter.Key, filter.Value)
		conds = append(conds, fmt.Sprintf("payload->>$%d = $%d", len(args)-1, len(args)))
	}
	if params.scoreThreshold != nil {
		args = append(args, *params.scoreThreshold)
		conds = append(conds, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	sb.WriteString(" ORDER BY embedding <=> $1")
	if params.limit > 0 {
		args = append(args, params.limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection '%s': %w", params.collection, err)
	}
	defer rows.Close()

	scoredPoints := make([]*ScoredPoint, 0)
	for rows.Next() {
		var (
			id         string
			score      float64
			rawPayload []byte
			embedding  pgvector.Vector
		)

		dests := []any{&id, &score}
		if params.withPayload {
			dests = append(dests, &rawPayload)
		}
		if params.withVectors {
			dests = append(dests, &embedding)
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan point from '%s': %w", params.collection, err)
		}

		point := &ScoredPoint{
			ID:      id,
			Score:   float32(score),
			Payload: make(map[string]string),
		}

		if params.withPayload && len(rawPayload) > 0 {
			var values map[string]any
			if err := json.Unmarshal(rawPayload, &values); err != nil {
				return nil, fmt.Errorf("failed to decode payload for point '%s': %w", id, err)
			}
			for k, v := range values {
				if text, ok := v.(string); ok {
					point.Payload[k] = text
				}
			}
		}
		if params.withVectors {
			point.Vector = embedding.Slice()
		}

		scoredPoints = append(scoredPoints, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read points from '%s': %w", params.collection, err)
	}

	return scoredPoints, nil
}

func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgvectorStore) tableName(collection string) string {
	return pgx.Identifier{collection}.Sanitize()
}

func (s *PgvectorStore) indexName(collection string, t IndexType) string {
	return pgx.Identifier{fmt.Sprintf("%s_embedding_%s_idx", collection, t)}.Sanitize()
}
