package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpGet      Op = "get"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpDeleteBy Op = "delete_by"
)

// Fault returns a non-nil error to make op on collection fail.
type Fault func(op Op, collection string) error

// Memory is a concurrency-safe in-process Store.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]map[string]Record
	fault Fault
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]Record)}
}

// SetFault installs f; a nil f clears it.
func (m *Memory) SetFault(f Fault) {
	m.mu.Lock()
	m.fault = f
	m.mu.Unlock()
}

// Seed stores rec as is, replacing any record with the same id.
func (m *Memory) Seed(collection string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table(collection)[rec.ID()] = rec.Clone()
}

// All returns the records of collection sorted by id.
func (m *Memory) All(collection string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.data[collection]))
	for _, r := range m.data[collection] {
		out = append(out, r.Clone())
	}

	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.ID(), b.ID()) })

	return out
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := m.check(ctx, OpGet, collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, berr.ErrNotFound)
	}

	return r.Clone(), nil
}

func (m *Memory) Create(ctx context.Context, collection string, fields Record) (Record, error) {
	if err := m.check(ctx, OpCreate, collection); err != nil {
		return nil, err
	}

	r := fields.Clone()
	if r == nil {
		r = Record{}
	}

	if r.ID() == "" {
		r[FieldID] = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(collection)
	if _, exists := t[r.ID()]; exists {
		return nil, fmt.Errorf("create %s/%s: duplicate id: %w", collection, r.ID(), berr.ErrPersistence)
	}

	t[r.ID()] = r

	return r.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	if err := m.check(ctx, OpUpdate, collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, berr.ErrNotFound)
	}

	r = r.Clone()
	maps.Copy(r, fields)
	r[FieldID] = id
	m.data[collection][id] = r

	return r.Clone(), nil
}

func (m *Memory) DeleteBy(ctx context.Context, collection, field string, value any) (int, error) {
	if err := m.check(ctx, OpDeleteBy, collection); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for id, r := range m.data[collection] {
		if v, ok := r[field]; ok && equal(v, value) {
			delete(m.data[collection], id)
			n++
		}
	}

	return n, nil
}

func (m *Memory) check(ctx context.Context, op Op, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	f := m.fault
	m.mu.RUnlock()

	if f == nil {
		return nil
	}

	if err := f(op, collection); err != nil {
		return fmt.Errorf("%s %s: %w", op, collection, errors.Join(berr.ErrPersistence, err))
	}

	return nil
}

// table returns the collection map, creating it. Callers hold mu.
func (m *Memory) table(collection string) map[string]Record {
	t, ok := m.data[collection]
	if !ok {
		t = make(map[string]Record)
		m.data[collection] = t
	}

	return t
}

// equal compares field values, treating uncomparable values as unequal.
func equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()

	return a == b
}
