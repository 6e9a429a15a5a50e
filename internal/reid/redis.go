package reid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore shares ReID identities across every worker in a stage's
// consumer group, so the same object keeps its global ID regardless of
// which worker processes which camera's partition. It is the optional
// alternative to MemoryStore, whose identities are process-local and can
// diverge between workers (spec §4.F).
type RedisStore struct {
	cfg    Config
	client *redis.Client
	prefix string
}

// NewRedisStore dials addr and returns a RedisStore. prefix namespaces
// keys so multiple pipelines can share one Redis instance.
func NewRedisStore(cfg Config, prefix string) *RedisStore {
	return &RedisStore{
		cfg:    cfg,
		client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		prefix: prefix,
	}
}

// NewRedisStoreWithClient wires an already-constructed *redis.Client,
// used by tests against alicebob/miniredis.
func NewRedisStoreWithClient(cfg Config, prefix string, client *redis.Client) *RedisStore {
	return &RedisStore{cfg: cfg, client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:reid:%s", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return fmt.Sprintf("%s:reid:index", s.prefix)
}

func encodeEmbedding(emb Embedding) string {
	parts := make([]string, len(emb))
	for i, v := range emb {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func decodeEmbedding(s string) Embedding {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	emb := make(Embedding, len(parts))
	for i, p := range parts {
		v, _ := strconv.ParseFloat(p, 64)
		emb[i] = v
	}
	return emb
}

// Assign scans every known identity held in Redis for the best cosine
// match. This is O(known identities) per call; the expected identity
// count within one retention window keeps this inexpensive in practice.
func (s *RedisStore) Assign(ctx context.Context, emb Embedding) (string, bool, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return "", false, fmt.Errorf("reid: list known identities: %w", err)
	}

	bestID := ""
	bestSim := -1.0
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.key(id)).Result()
		if err == redis.Nil {
			continue // expired since the index was read
		}
		if err != nil {
			return "", false, fmt.Errorf("reid: fetch embedding %s: %w", id, err)
		}
		sim := CosineSimilarity(decodeEmbedding(raw), emb)
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	if bestID != "" && bestSim >= s.cfg.Threshold {
		s.touch(ctx, bestID)
		return bestID, true, nil
	}

	id := uuid.NewString()
	if err := s.store(ctx, id, emb); err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (s *RedisStore) store(ctx context.Context, id string, emb Embedding) error {
	ttl := s.ttl()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), encodeEmbedding(emb), ttl)
	pipe.SAdd(ctx, s.indexKey(), id)
	if ttl > 0 {
		pipe.Expire(ctx, s.indexKey(), ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("reid: store identity %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) touch(ctx context.Context, id string) {
	if ttl := s.ttl(); ttl > 0 {
		s.client.Expire(ctx, s.key(id), ttl)
	}
}

func (s *RedisStore) ttl() time.Duration {
	if s.cfg.TTL <= 0 {
		return 0
	}
	return time.Duration(s.cfg.TTL) * time.Second
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
