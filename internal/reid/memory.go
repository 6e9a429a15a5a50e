package reid

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the default, process-local Store: a linear scan over
// known embeddings. Adequate for a single ReID worker; multi-worker
// deployments should use RedisStore instead so identities stay consistent
// across the consumer group (spec §4.F Non-goals note scaling this
// further is out of scope).
type MemoryStore struct {
	cfg Config

	mu         sync.Mutex
	identities map[string]Embedding
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{cfg: cfg, identities: map[string]Embedding{}}
}

func (s *MemoryStore) Assign(_ context.Context, emb Embedding) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bestID := ""
	bestSim := -1.0
	for id, known := range s.identities {
		sim := CosineSimilarity(known, emb)
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	if bestID != "" && bestSim >= s.cfg.Threshold {
		return bestID, true, nil
	}

	id := uuid.NewString()
	s.identities[id] = emb
	return id, false, nil
}

func (s *MemoryStore) Close() error { return nil }
