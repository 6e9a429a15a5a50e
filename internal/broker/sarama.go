package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/go-kit/log/level"

	mcmotlog "github.com/grafana/mcmot/internal/log"
)

// SaramaConfig configures the production Kafka-backed broker.
type SaramaConfig struct {
	BootstrapServers []string `yaml:"bootstrap-servers"`
	ClientID         string   `yaml:"client-id"`
}

// saramaBroker is the production Broker implementation on top of
// IBM/sarama, using a custom xxhash key-partitioner so the Partition
// Affinity invariant (§3) holds independent of sarama's default
// partitioner choice.
type saramaBroker struct {
	cfg      SaramaConfig
	client   sarama.Client
	admin    sarama.ClusterAdmin
	producer sarama.SyncProducer

	mu      sync.Mutex
	groups  []sarama.ConsumerGroup
}

// NewSarama dials the cluster and constructs a Broker backed by it.
func NewSarama(cfg SaramaConfig) (Broker, error) {
	if len(cfg.BootstrapServers) == 0 {
		return nil, errors.New("broker: bootstrap-servers must not be empty")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Producer.Partitioner = NewPartitioner

	client, err := sarama.NewClient(cfg.BootstrapServers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("broker: admin client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = admin.Close()
		_ = client.Close()
		return nil, fmt.Errorf("broker: producer: %w", err)
	}

	return &saramaBroker{cfg: cfg, client: client, admin: admin, producer: producer}, nil
}

func (b *saramaBroker) Produce(ctx context.Context, topic, key string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err := b.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("broker: produce to %s: %w", topic, err)
	}
	return nil
}

func (b *saramaBroker) CreateTopic(ctx context.Context, name string, partitions, replication int) error {
	detail := &sarama.TopicDetail{
		NumPartitions:     int32(partitions),
		ReplicationFactor: int16(replication),
	}
	err := b.admin.CreateTopic(name, detail, false)
	if err != nil && errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("broker: create topic %s: %w", name, err)
	}
	return nil
}

func (b *saramaBroker) DeleteTopic(ctx context.Context, name string) error {
	err := b.admin.DeleteTopic(name)
	if err != nil && errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("broker: delete topic %s: %w", name, err)
	}
	return nil
}

// groupHandler adapts a ConsumeFunc to sarama.ConsumerGroupHandler,
// committing the offset only after cb returns nil (§4.A at-least-once
// commit semantics).
type groupHandler struct {
	cb ConsumeFunc
}

func (groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := Message{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       string(msg.Key),
				Value:     msg.Value,
			}
			if err := h.cb(sess.Context(), m); err != nil {
				level.Warn(mcmotlog.Logger).Log("msg", "callback failed, not committing", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
				continue
			}
			sess.MarkMessage(msg, "")
		}
	}
}

func (b *saramaBroker) Consume(ctx context.Context, topic, group string, cb ConsumeFunc) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	cg, err := sarama.NewConsumerGroup(b.cfg.BootstrapServers, group, saramaCfg)
	if err != nil {
		return fmt.Errorf("broker: consumer group %s: %w", group, err)
	}
	b.mu.Lock()
	b.groups = append(b.groups, cg)
	b.mu.Unlock()

	h := groupHandler{cb: cb}
	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return nil
			}
			level.Error(mcmotlog.Logger).Log("msg", "consumer group session error", "topic", topic, "group", group, "err", err)
		}
	}
	return nil
}

func (b *saramaBroker) Close(ctx context.Context) error {
	b.mu.Lock()
	groups := b.groups
	b.mu.Unlock()
	for _, g := range groups {
		_ = g.Close()
	}
	if err := b.producer.Close(); err != nil {
		return fmt.Errorf("broker: close producer: %w", err)
	}
	_ = b.admin.Close()
	return b.client.Close()
}
