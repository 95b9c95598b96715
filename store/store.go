// Package store is the persistence contract the event consumer writes member, coupon and audit
// records through.
package store

import (
	"context"
	"encoding/json"
	"maps"
	"strconv"
)

// Collections touched by the consumer.
const (
	Users           = "users"
	Coupons         = "coupons"
	PointsRecords   = "points_records"
	Recommendations = "recommendations"
	CouponUsage     = "coupon_usage"
)

// FieldID is the primary key field of every record.
const FieldID = "id"

// Record is one schemaless row.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() string { return r.String(FieldID) }

// String returns r[key] when it is a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns r[key] as an int, accepting any JSON-decoded numeric form.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record { return maps.Clone(r) }

// Store reads and writes records in named collections. Implementations return errors matching
// contract/errors.ErrNotFound or ErrPersistence.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	// Create inserts fields, assigning an id when fields has none, and returns the stored record.
	Create(ctx context.Context, collection string, fields Record) (Record, error)
	// Update merges fields into the record and returns the result.
	Update(ctx context.Context, collection, id string, fields Record) (Record, error)
	// DeleteBy removes every record whose field equals value and reports how many were removed.
	DeleteBy(ctx context.Context, collection, field string, value any) (int, error)
}
