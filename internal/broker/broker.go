// Package broker implements the Message Layer (spec §4.A): a typed
// producer/consumer over a partitioned, at-least-once broker, with
// camera_id-keyed partition affinity.
package broker

import "context"

// Message is one delivered record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte
}

// ConsumeFunc handles one delivered message. Returning a non-nil error
// prevents the offset from being committed; the runtime redelivers the
// message (§4.A, §7).
type ConsumeFunc func(ctx context.Context, msg Message) error

// Broker is the external collaborator described in spec §1/§4.A.
type Broker interface {
	// Produce publishes payload to topic, partitioned by key.
	Produce(ctx context.Context, topic, key string, payload []byte) error
	// CreateTopic (re)creates topic with the given partition count and
	// replication factor. Implementations are idempotent: creating an
	// existing topic with the same partition count is a no-op.
	CreateTopic(ctx context.Context, name string, partitions, replication int) error
	// DeleteTopic removes topic. Deleting a missing topic is not an error.
	DeleteTopic(ctx context.Context, name string) error
	// Consume subscribes to topic under group and invokes cb for every
	// delivered message until ctx is cancelled. Consume blocks until the
	// subscription ends (ctx cancellation, or a fatal broker error).
	Consume(ctx context.Context, topic, group string, cb ConsumeFunc) error
	// Close flushes any pending produces and releases broker resources.
	// Producer flush is synchronous; the implementations in this package
	// do not consult ctx.
	Close(ctx context.Context) error
}

// Partitioner maps a partition key to a partition index, used by brokers
// whose client library needs partition assignment driven explicitly
// (spec §3 Partition Affinity: all envelopes with the same camera_id must
// land on the same partition of a given topic).
type Partitioner interface {
	Partition(key string, numPartitions int32) int32
}
