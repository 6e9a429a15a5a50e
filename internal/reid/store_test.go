package reid

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	a := Embedding{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
}

func TestMemoryStore_ReassignsCloseEmbeddingToSameIdentity(t *testing.T) {
	s := NewMemoryStore(Config{Threshold: 0.99})

	id1, matched, err := s.Assign(context.Background(), Embedding{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, matched)

	id2, matched, err := s.Assign(context.Background(), Embedding{0.999, 0.001, 0})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, id1, id2)

	id3, matched, err := s.Assign(context.Background(), Embedding{0, 1, 0})
	require.NoError(t, err)
	assert.False(t, matched)
	assert.NotEqual(t, id1, id3)
}

func TestRedisStore_MatchesAcrossCalls(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStoreWithClient(Config{Threshold: 0.9, TTL: 60}, "test", client)

	id1, _, err := s.Assign(context.Background(), Embedding{1, 0, 0, 0})
	require.NoError(t, err)

	id2, matched, err := s.Assign(context.Background(), Embedding{0.98, 0.02, 0, 0})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, id1, id2)
}
