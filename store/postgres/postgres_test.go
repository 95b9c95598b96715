package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

type call struct {
	sql  string
	args []any
}

type fakeRow struct {
	raw []byte
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}

	*(dest[0].(*[]byte)) = r.raw

	return nil
}

type fakeDB struct {
	calls   []call
	row     fakeRow
	tag     pgconn.CommandTag
	execErr error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.tag, f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.row
}

func TestGet(t *testing.T) {
	db := &fakeDB{row: fakeRow{raw: []byte(`{"id":"u1","points":950,"level":"bronze"}`)}}
	s := New(db)

	r, err := s.Get(t.Context(), store.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, 950, r.Int("points"))
	assert.Equal(t, "bronze", r.String("level"))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "SELECT data")
	assert.Equal(t, []any{store.Users, "u1"}, db.calls[0].args)
}

func TestGetNotFound(t *testing.T) {
	s := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := s.Get(t.Context(), store.Users, "nope")
	require.ErrorIs(t, err, berr.ErrNotFound)
}

func TestCreateAssignsID(t *testing.T) {
	db := &fakeDB{}
	s := New(db)

	r, err := s.Create(t.Context(), store.Coupons, store.Record{"code": "WELCOME"})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID())

	require.Len(t, db.calls, 1)
	assert.True(t, strings.Contains(db.calls[0].sql, "INSERT INTO records"))
	assert.Equal(t, store.Coupons, db.calls[0].args[0])
	assert.Equal(t, r.ID(), db.calls[0].args[1])

	var stored map[string]any
	require.NoError(t, json.Unmarshal(db.calls[0].args[2].([]byte), &stored))
	assert.Equal(t, "WELCOME", stored["code"])
}

func TestCreateDuplicate(t *testing.T) {
	s := New(&fakeDB{execErr: &pgconn.PgError{Code: uniqueViolation}})

	_, err := s.Create(t.Context(), store.Users, store.Record{"id": "u1"})
	require.ErrorIs(t, err, berr.ErrPersistence)
}

func TestUpdateMergesAndDropsID(t *testing.T) {
	db := &fakeDB{row: fakeRow{raw: []byte(`{"id":"u1","points":1050,"level":"silver"}`)}}
	s := New(db)

	r, err := s.Update(t.Context(), store.Users, "u1", store.Record{"id": "other", "points": 1050})
	require.NoError(t, err)
	assert.Equal(t, "u1", r.ID())

	assert.Contains(t, db.calls[0].sql, "data || $3::jsonb")
	assert.JSONEq(t, `{"points":1050}`, string(db.calls[0].args[2].([]byte)))
}

func TestUpdateNotFound(t *testing.T) {
	s := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := s.Update(t.Context(), store.Users, "u1", store.Record{"points": 1})
	require.ErrorIs(t, err, berr.ErrNotFound)
}

func TestDeleteBy(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 3")}
	s := New(db)

	n, err := s.DeleteBy(t.Context(), store.Recommendations, "product", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []any{store.Recommendations, "product", []byte(`"p1"`)}, db.calls[0].args)
}

func TestErrorsAreMapped(t *testing.T) {
	boom := errors.New("connection reset")
	s := New(&fakeDB{execErr: boom})

	_, err := s.DeleteBy(t.Context(), store.Recommendations, "product", "p1")
	require.ErrorIs(t, err, berr.ErrPersistence)
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, s.EnsureSchema(t.Context()), berr.ErrPersistence)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = s.Get(ctx, store.Users, "u1")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, berr.ErrPersistence)
}
