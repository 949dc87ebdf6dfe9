package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/graphstore/internal/platform/logger"
)

// Store persists vectors by key.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

type RedisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, encodeVector(vec), ttl).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// MemoryStore keeps vectors in process. TTL is ignored.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string][]float32{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, vec []float32, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = vec
	return nil
}

// Cached memoizes another provider. Concurrent requests for the same text
// share one upstream call. Store failures degrade to uncached embedding.
type Cached struct {
	inner Provider
	store Store
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
}

func NewCached(inner Provider, store Store, ttl time.Duration, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Nop()
	}
	return &Cached{
		inner: inner,
		store: store,
		ttl:   ttl,
		log:   log.With("service", "EmbeddingCache"),
	}
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn("embedding cache read failed", "error", err)
	} else if ok && len(vec) == c.inner.Dimension() {
		return vec, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if vec, ok, err := c.store.Get(ctx, key); err == nil && ok && len(vec) == c.inner.Dimension() {
			return vec, nil
		}
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == c.inner.Dimension() {
			if err := c.store.Set(ctx, key, vec, c.ttl); err != nil {
				c.log.Warn("embedding cache write failed", "error", err)
			}
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "graphstore:emb:" + c.inner.Name() + ":" + strconv.Itoa(c.inner.Dimension()) + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
