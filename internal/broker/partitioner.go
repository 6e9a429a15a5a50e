package broker

import (
	"github.com/IBM/sarama"
	"github.com/cespare/xxhash/v2"
)

// keyPartitioner hashes the message key with xxhash to pick a partition,
// the same stable-hash-of-key contract Kafka's own default hash
// partitioner provides, so that re-deriving a partition for a given
// camera_id (e.g. after a rebalance) is deterministic.
type keyPartitioner struct {
	topic string
}

// NewPartitioner builds a sarama.Partitioner for topic, hashing the
// message key with xxhash instead of sarama's default FNV-1a so the
// partitioner can be unit tested independently via Partition below.
func NewPartitioner(topic string) sarama.Partitioner {
	return &keyPartitioner{topic: topic}
}

func (p *keyPartitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	key, err := msg.Key.Encode()
	if err != nil {
		return 0, err
	}
	return Partition(string(key), numPartitions), nil
}

func (p *keyPartitioner) RequiresConsistency() bool { return true }

// Partition is the pure partitioning function backing keyPartitioner,
// exposed so internal/sync and tests can confirm the Partition Affinity
// invariant (§3) without a sarama dependency.
func Partition(key string, numPartitions int32) int32 {
	if numPartitions <= 0 {
		return 0
	}
	h := xxhash.Sum64String(key)
	return int32(h % uint64(numPartitions))
}
