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

// Package loader reads source documents out of relational tables.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrMissingTable  = errors.New("loader params must name a table")
	ErrMissingColumn = errors.New("loader params must name a content column")
)

// Params maps the loader configuration options: schema owner, table name
// and the column holding document text.
type Params struct {
	// Required
	Table  string
	Column string

	// Optional
	Schema      string
	IDColumn    string
	TitleColumn string
}

func (p Params) withDefaults() Params {
	if p.Schema == "" {
		p.Schema = "public"
	}
	if p.IDColumn == "" {
		p.IDColumn = "id"
	}
	return p
}

// Loader loads source documents for indexing.
type Loader interface {
	Load(ctx context.Context) ([]*api.Document, error)
	LoadIDs(ctx context.Context, ids []string) ([]*api.Document, error)
}

// Querier is the subset of pgx used by the loader, satisfied by both
// *pgx.Conn and *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect opens a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return pool, nil
}

type PostgresLoader struct {
	db     Querier
	params Params
}

func NewPostgres(db Querier, params Params) (*PostgresLoader, error) {
	if params.Table == "" {
		return nil, ErrMissingTable
	}
	if params.Column == "" {
		return nil, ErrMissingColumn
	}

	return &PostgresLoader{
		db:     db,
		params: params.withDefaults(),
	}, nil
}

func (l *PostgresLoader) Params() Params {
	return l.params
}

// Load reads every row of the configured table as a document.
func (l *PostgresLoader) Load(ctx context.Context) ([]*api.Document, error) {
	rows, err := l.db.Query(ctx, l.selectQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query table '%s': %w", l.tableName(), err)
	}
	defer rows.Close()

	return l.collect(rows)
}

// LoadIDs reads only the rows matching the given primary key values.
func (l *PostgresLoader) LoadIDs(ctx context.Context, ids []string) ([]*api.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("%s WHERE %s = ANY($1)",
		l.selectQuery(), pgx.Identifier{l.params.IDColumn}.Sanitize())

	rows, err := l.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query table '%s': %w", l.tableName(), err)
	}
	defer rows.Close()

	return l.collect(rows)
}

func (l *PostgresLoader) collect(rows pgx.Rows) ([]*api.Document, error) {
	docs := make([]*api.Document, 0)

	for rows.Next() {
		var (
			id      any
			title   *string
			content *string
		)

		dests := []any{&id, &content}
		if l.params.TitleColumn != "" {
			dests = []any{&id, &title, &content}
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan row from table '%s': %w", l.tableName(), err)
		}

		doc := &api.Document{
			ID:     fmt.Sprint(id),
			Source: l.tableName(),
		}
		if content != nil {
			doc.Content = *content
		}
		if title != nil {
			doc.Title = *title
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows from table '%s': %w", l.tableName(), err)
	}

	return docs, nil
}

func (l *PostgresLoader) selectQuery() string {
	cols := []string{l.params.IDColumn, l.params.Column}
	if l.params.TitleColumn != "" {
		cols = []string{l.params.IDColumn, l.params.TitleColumn, l.params.Column}
	}

	sanitized := make([]string, len(cols))
	for i, col := range cols {
		sanitized[i] = pgx.Identifier{col}.Sanitize()
	}

	query := "SELECT "
	for i, col := range sanitized {
		if i > 0 {
			query += ", "
		}
		query += col
	}
	return query + " FROM " + l.tableName()
}

func (l *PostgresLoader) tableName() string {
	return pgx.Identifier{l.params.Schema, l.params.Table}.Sanitize()
}
