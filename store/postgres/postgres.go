// Package postgres stores records as JSONB rows keyed by (collection, id).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

// Schema creates the records table.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

const uniqueViolation = "23505"

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	db querier
}

var _ store.Store = (*Store)(nil)

// New returns a Store issuing queries on db.
func New(db querier) *Store {
	return &Store{db: db}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", errors.Join(berr.ErrPersistence, err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", errors.Join(berr.ErrPersistence, err))
	}

	return pool, nil
}

// EnsureSchema creates the records table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return wrap(ctx, "ensure schema", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte

	err := s.db.QueryRow(ctx, `
		SELECT data
		FROM records
		WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&raw)
	if err != nil {
		return nil, wrap(ctx, "get "+collection+"/"+id, err)
	}

	return decode(raw)
}

func (s *Store) Create(ctx context.Context, collection string, fields store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := fields.Clone()
	if r == nil {
		r = store.Record{}
	}

	if r.ID() == "" {
		r[store.FieldID] = uuid.NewString()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, errors.Join(berr.ErrSerializationFailed, err))
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO records (collection, id, data)
		VALUES ($1, $2, $3)
	`, collection, r.ID(), data)
	if err != nil {
		return nil, wrap(ctx, "create "+collection+"/"+r.ID(), err)
	}

	return r, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	patch := fields.Clone()
	if patch == nil {
		patch = store.Record{}
	}

	delete(patch, store.FieldID)

	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, errors.Join(berr.ErrSerializationFailed, err))
	}

	var raw []byte

	err = s.db.QueryRow(ctx, `
		UPDATE records
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
		RETURNING data
	`, collection, id, data).Scan(&raw)
	if err != nil {
		return nil, wrap(ctx, "update "+collection+"/"+id, err)
	}

	return decode(raw)
}

func (s *Store) DeleteBy(ctx context.Context, collection, field string, value any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	v, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("delete %s by %s: %w", collection, field, errors.Join(berr.ErrSerializationFailed, err))
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM records
		WHERE collection = $1 AND data -> $2 = $3::jsonb
	`, collection, field, v)
	if err != nil {
		return 0, wrap(ctx, "delete "+collection+" by "+field, err)
	}

	return int(tag.RowsAffected()), nil
}

func decode(raw []byte) (store.Record, error) {
	var r store.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	return r, nil
}

// wrap maps driver errors onto the store sentinels. Context errors pass through.
func wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, berr.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: duplicate id: %w", op, errors.Join(berr.ErrPersistence, err))
	}

	return fmt.Errorf("%s: %w", op, errors.Join(berr.ErrPersistence, err))
}
