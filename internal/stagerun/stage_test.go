package stagerun

import (
	"context"
	"testing"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/sync"
)

func TestStage_PassthroughProducesToOutputTopic(t *testing.T) {
	br := broker.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Pipeline:    "test",
		Stage:       "echo",
		InputTopics: []string{"in"},
		OutputTopic: "out",
		GroupID:     "echo-group",
		MaxRetries:  1,
		Sync:        sync.Config{Type: sync.TypeNone},
	}

	received := make(chan envelope.Envelope, 1)
	stage := New(cfg, br, func(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
		for _, env := range frames {
			out := env
			received <- env
			return &out, nil
		}
		return nil, nil
	}, nil)

	require.NoError(t, services.StartAndAwaitRunning(ctx, stage))
	defer func() { _ = services.StopAndAwaitTerminated(context.Background(), stage) }()

	env := envelope.Envelope{CameraID: "cam1", FrameNumber: 1}
	payload, err := env.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, br.Produce(ctx, "in", env.Key(), payload))

	select {
	case got := <-received:
		require.Equal(t, "cam1", got.CameraID)
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
	}

	outCh := make(chan broker.Message, 1)
	outCtx, outCancel := context.WithCancel(context.Background())
	go func() {
		_ = br.Consume(outCtx, "out", "verify", func(ctx context.Context, msg broker.Message) error {
			outCh <- msg
			return nil
		})
	}()
	defer outCancel()

	select {
	case msg := <-outCh:
		require.Equal(t, "cam1", msg.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("stage did not produce to the output topic")
	}
}
