package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// PostgresBackend stores documents in JSONB columns. Each collection maps to
// a table created by the embedded migrations.
type PostgresBackend struct {
	db *sqlx.DB
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend wraps an open, migrated pool.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

// table returns the table name for c. Only known collections reach SQL text.
func table(c Collection) (string, error) {
	if err := c.valid(); err != nil {
		return "", err
	}
	return string(c), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func containsJSON(f Filter) (string, error) {
	if len(f) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]any(f))
	if err != nil {
		return "", fmt.Errorf("pg filter: %w", err)
	}
	return string(raw), nil
}

// updateExpr builds the jsonb expression applying p to body. Placeholders
// start at $<first>.
func updateExpr(p Patch, first int) (string, []any, error) {
	expr := "body"
	var args []any
	n := first
	if len(p.Set) > 0 {
		raw, err := json.Marshal(p.Set)
		if err != nil {
			return "", nil, fmt.Errorf("pg patch: %w", err)
		}
		expr = fmt.Sprintf("(%s || $%d::jsonb)", expr, n)
		args = append(args, string(raw))
		n++
	}
	for _, k := range sortedKeys(p.Inc) {
		expr = fmt.Sprintf(
			"jsonb_set(%s, ARRAY[$%d]::text[], to_jsonb(COALESCE((body->>$%d)::bigint, 0) + $%d::bigint))",
			expr, n, n, n+1,
		)
		args = append(args, k, p.Inc[k])
		n += 2
	}
	return expr, args, nil
}

func (b *PostgresBackend) Create(ctx context.Context, c Collection, id string, doc Document) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (id, body) VALUES ($1, $2::jsonb)", t)
	if _, err := b.db.ExecContext(ctx, q, id, string(doc)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return fmt.Errorf("pg create: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Read(ctx context.Context, c Collection, id string) (Document, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	var body []byte
	q := fmt.Sprintf("SELECT body FROM %s WHERE id = $1", t)
	if err := b.db.GetContext(ctx, &body, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pg read: %w", err)
	}
	return Document(body), nil
}

func (b *PostgresBackend) Update(ctx context.Context, c Collection, id string, p Patch) (Document, error) {
	if p.IsZero() {
		return b.Read(ctx, c, id)
	}
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	expr, args, err := updateExpr(p, 2)
	if err != nil {
		return nil, err
	}
	var body []byte
	q := fmt.Sprintf("UPDATE %s SET body = %s WHERE id = $1 RETURNING body", t, expr)
	if err := b.db.GetContext(ctx, &body, q, append([]any{id}, args...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return nil, fmt.Errorf("pg update: %w", err)
	}
	return Document(body), nil
}

func (b *PostgresBackend) Delete(ctx context.Context, c Collection, id string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t), id)
	if err != nil {
		return fmt.Errorf("pg delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, c Collection, f Filter) ([]Document, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	filter, err := containsJSON(f)
	if err != nil {
		return nil, err
	}
	var bodies [][]byte
	q := fmt.Sprintf("SELECT body FROM %s WHERE body @> $1::jsonb ORDER BY created_at, id", t)
	if err := b.db.SelectContext(ctx, &bodies, q, filter); err != nil {
		return nil, fmt.Errorf("pg list: %w", err)
	}
	out := make([]Document, 0, len(bodies))
	for _, body := range bodies {
		out = append(out, Document(body))
	}
	return out, nil
}

func (b *PostgresBackend) UpdateMany(ctx context.Context, c Collection, f Filter, p Patch) (int64, error) {
	if p.IsZero() {
		return b.Count(ctx, c, f)
	}
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	filter, err := containsJSON(f)
	if err != nil {
		return 0, err
	}
	expr, args, err := updateExpr(p, 2)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("UPDATE %s SET body = %s WHERE body @> $1::jsonb", t, expr)
	res, err := b.db.ExecContext(ctx, q, append([]any{filter}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("pg update many: %w", err)
	}
	return res.RowsAffected()
}

func (b *PostgresBackend) DeleteMany(ctx context.Context, c Collection, f Filter) (int64, error) {
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	filter, err := containsJSON(f)
	if err != nil {
		return 0, err
	}
	res, err := b.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE body @> $1::jsonb", t), filter)
	if err != nil {
		return 0, fmt.Errorf("pg delete many: %w", err)
	}
	return res.RowsAffected()
}

func (b *PostgresBackend) Count(ctx context.Context, c Collection, f Filter) (int64, error) {
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	filter, err := containsJSON(f)
	if err != nil {
		return 0, err
	}
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE body @> $1::jsonb", t)
	if err := b.db.GetContext(ctx, &n, q, filter); err != nil {
		return 0, fmt.Errorf("pg count: %w", err)
	}
	return n, nil
}

func (b *PostgresBackend) Close(context.Context) error {
	return b.db.Close()
}
