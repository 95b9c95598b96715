// Package rediscache puts a Redis read-through cache in front of a store.Store.
//
// The cache fails open: a Redis error is logged and the call goes to the wrapped store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "records"
	scanBatch     = 100
)

// cache is the subset of redis.Cmdable the decorator uses.
type cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Store caches reads of the wrapped store.
type Store struct {
	next   store.Store
	rdb    cache
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the cache entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(p string) Option {
	return func(s *Store) {
		if p = strings.TrimSpace(p); p != "" {
			s.prefix = p
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New wraps next with a cache held in rdb.
func New(next store.Store, rdb cache, opts ...Option) *Store {
	s := &Store{
		next:   next,
		rdb:    rdb,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis config: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", errors.Join(berr.ErrNotConnected, err))
	}

	return rdb, nil
}

func (s *Store) key(collection, id string) string {
	return s.prefix + ":" + collection + ":" + id
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	raw, err := s.rdb.Get(ctx, s.key(collection, id)).Bytes()

	switch {
	case err == nil:
		var r store.Record
		if jerr := json.Unmarshal(raw, &r); jerr == nil {
			return r, nil
		}

		s.logger.WarnContext(ctx, "cache entry unreadable", "collection", collection, "id", id)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.WarnContext(ctx, "cache get failed", "collection", collection, "id", id, "err", err)
	}

	r, err := s.next.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	s.put(ctx, collection, r)

	return r, nil
}

func (s *Store) Create(ctx context.Context, collection string, fields store.Record) (store.Record, error) {
	r, err := s.next.Create(ctx, collection, fields)
	if err != nil {
		return nil, err
	}

	s.put(ctx, collection, r)

	return r, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Record) (store.Record, error) {
	r, err := s.next.Update(ctx, collection, id, fields)
	if err != nil {
		s.evict(ctx, s.key(collection, id))
		return nil, err
	}

	s.put(ctx, collection, r)

	return r, nil
}

// DeleteBy deletes through and evicts every cached record of collection.
func (s *Store) DeleteBy(ctx context.Context, collection, field string, value any) (int, error) {
	n, err := s.next.DeleteBy(ctx, collection, field, value)
	if err != nil {
		return n, err
	}

	if n > 0 {
		s.evictCollection(ctx, collection)
	}

	return n, nil
}

func (s *Store) put(ctx context.Context, collection string, r store.Record) {
	if r.ID() == "" {
		return
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return
	}

	if err := s.rdb.Set(ctx, s.key(collection, r.ID()), raw, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache set failed", "collection", collection, "id", r.ID(), "err", err)
	}
}

func (s *Store) evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache evict failed", "keys", len(keys), "err", err)
	}
}

func (s *Store) evictCollection(ctx context.Context, collection string) {
	var cursor uint64

	match := s.key(collection, "*")

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			s.logger.WarnContext(ctx, "cache scan failed", "collection", collection, "err", err)
			return
		}

		s.evict(ctx, keys...)

		if next == 0 {
			return
		}

		cursor = next
	}
}
