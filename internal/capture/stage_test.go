package capture

import (
	"context"
	"testing"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/controlplane"
	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/sync"
)

func TestStage_ProducesMonotonicFrameNumbers(t *testing.T) {
	br := broker.NewMemory()
	src := NewFixtureSource(16, 16)

	cfg := Config{
		Pipeline:    "test",
		OutputTopic: "capture-out",
		Camera:      CameraConfig{CameraID: "cam1", FPS: 1000, Width: 16, Height: 16},
		Sync:        sync.Config{Type: sync.TypeNone},
	}
	stage := New(cfg, src, br, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, services.StartAndAwaitRunning(ctx, stage))

	received := make(chan envelope.Envelope, 16)
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	go func() {
		_ = br.Consume(consumeCtx, "capture-out", "test", func(ctx context.Context, msg broker.Message) error {
			var env envelope.Envelope
			if err := env.UnmarshalJSON(msg.Value); err != nil {
				return err
			}
			received <- env
			return nil
		})
	}()
	defer consumeCancel()

	var last int64 = -1
	for i := 0; i < 5; i++ {
		select {
		case env := <-received:
			require.Greater(t, env.FrameNumber, last)
			last = env.FrameNumber
		case <-time.After(2 * time.Second):
			t.Fatal("did not receive expected captured frame")
		}
	}

	cancel()
	_ = services.StopAndAwaitTerminated(context.Background(), stage)
}

func TestStage_HandleSignalDecodesControlMessageJSON(t *testing.T) {
	stage := New(Config{
		Pipeline: "test",
		Camera:   CameraConfig{CameraID: "cam1"},
		Sync:     sync.Config{Type: sync.TypeNone},
	}, NewFixtureSource(16, 16), broker.NewMemory(), nil)

	payload, err := controlplane.MarshalControlMessage("test", "HOLD", 0)
	require.NoError(t, err)
	require.NoError(t, stage.handleSignal(context.Background(), broker.Message{Value: payload}))
	assert.True(t, stage.holding)

	payload, err = controlplane.MarshalControlMessage("test", "RESUME", 0)
	require.NoError(t, err)
	require.NoError(t, stage.handleSignal(context.Background(), broker.Message{Value: payload}))
	assert.False(t, stage.holding)
}

func TestStage_HandleSignalDiscardsMalformedPayload(t *testing.T) {
	stage := New(Config{
		Pipeline: "test",
		Camera:   CameraConfig{CameraID: "cam1"},
		Sync:     sync.Config{Type: sync.TypeNone},
	}, NewFixtureSource(16, 16), broker.NewMemory(), nil)

	require.NoError(t, stage.handleSignal(context.Background(), broker.Message{Value: []byte("not json")}))
	assert.False(t, stage.holding)
}
