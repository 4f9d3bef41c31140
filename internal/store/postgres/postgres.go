// Package postgres keeps documents as JSONB rows, one table per collection.
// Counting and DISTINCT run in SQL, so it provides store.Counters.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

// BuildWhere renders f as a WHERE clause (empty when f matches everything)
// with positional args starting at $1.
func BuildWhere(f store.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Role != "" {
		add("doc->>'role' = $%d", string(f.Role))
	}
	if f.Doctor != "" {
		add("doc->>'doctor' = $%d", f.Doctor)
	}
	if f.Patient != "" {
		add("doc->>'patient' = $%d", f.Patient)
	}
	if len(f.Statuses) > 0 {
		st := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			st[i] = string(s)
		}
		add("doc->>'status' = ANY($%d)", st)
	}
	if !f.From.IsZero() {
		add("(doc->>'appointmentDate')::timestamptz >= $%d", f.From)
	}
	if f.Email != "" {
		add("lower(doc->>'email') = lower($%d)", f.Email)
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(doc->>'name' ILIKE $%d OR doc->>'email' ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type Collection[T store.Document] struct {
	pool  *pgxpool.Pool
	table string
}

func (c *Collection[T]) Find(ctx context.Context, f store.Filter) ([]T, error) {
	where, args := BuildWhere(f)
	rows, err := c.pool.Query(ctx, `SELECT doc FROM `+c.table+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d T
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var d T
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT doc FROM `+c.table+` WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, store.ErrNotFound
	}
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(raw, &d)
	return d, err
}

func (c *Collection[T]) Insert(ctx context.Context, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `INSERT INTO `+c.table+` (id, doc) VALUES ($1, $2)`, doc.Key(), raw)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (c *Collection[T]) Replace(ctx context.Context, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE `+c.table+` SET doc = $1, updated_at = NOW() WHERE id = $2`, raw, doc.Key())
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM `+c.table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) CountDocuments(ctx context.Context, f store.Filter) (int64, error) {
	where, args := BuildWhere(f)
	var n int64
	err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+c.table+where, args...).Scan(&n)
	return n, err
}

func (c *Collection[T]) Distinct(ctx context.Context, field string, f store.Filter) ([]string, error) {
	if !store.ValidField(field) {
		return nil, fmt.Errorf("distinct on unsupported field %q", field)
	}
	where, args := BuildWhere(f)
	col := "doc->>'" + field + "'"
	if where == "" {
		where = " WHERE " + col + " IS NOT NULL"
	} else {
		where += " AND " + col + " IS NOT NULL"
	}

	rows, err := c.pool.Query(ctx, `SELECT DISTINCT `+col+` FROM `+c.table+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies every .sql file in dir in name order. Statements are
// written to be idempotent, so re-running is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)
	for i, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return i, err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return i, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return len(files), nil
}

func New(pool *pgxpool.Pool) *store.Backend {
	users := &Collection[model.User]{pool: pool, table: model.Users}
	appts := &Collection[model.Appointment]{pool: pool, table: model.Appointments}
	analyses := &Collection[model.Analysis]{pool: pool, table: model.Analyses}
	reports := &Collection[model.Report]{pool: pool, table: model.Reports}

	b := &store.Backend{
		Name:         "postgres",
		Users:        users,
		Appointments: appts,
		Analyses:     analyses,
		Reports:      reports,
		Counters: &store.Counters{
			Users:        users,
			Appointments: appts,
			Analyses:     analyses,
			Reports:      reports,
		},
	}
	b.OnClose(func(context.Context) error {
		pool.Close()
		return nil
	})
	return b
}
