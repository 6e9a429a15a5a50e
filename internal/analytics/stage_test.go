package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/objstore"
)

type fixedLLM struct{ caption string }

func (f fixedLLM) Analyze(_ context.Context, _ string, _ []byte, _ map[string]any) (Caption, error) {
	return Caption{Text: f.caption, Model: "fixture"}, nil
}

func TestStage_FlushWritesLogAndXLSX(t *testing.T) {
	backend, err := objstore.New(objstore.Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	s := New(DefaultConfig(), fixedLLM{caption: "a person crosses the lobby"}, backend)

	env := envelope.Envelope{FrameNumber: 7, Metadata: envelope.Metadata{Cameras: []string{"cam1", "cam2"}}}
	_, err = s.Callback(context.Background(), map[string]envelope.Envelope{"unified": env})
	require.NoError(t, err)

	s.flush(context.Background())

	logData, err := backend.Read(context.Background(), "unified.log")
	require.NoError(t, err)
	assert.Contains(t, string(logData), "a person crosses the lobby")

	xlsxData, err := backend.Read(context.Background(), "unified.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, xlsxData)
}

func TestStage_RunFlushesOnTicker(t *testing.T) {
	backend, err := objstore.New(objstore.Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	cfg := DefaultConfig()
	cfg.LogWaitTime = 10 * time.Millisecond
	s := New(cfg, fixedLLM{caption: "caption"}, backend)

	env := envelope.Envelope{FrameNumber: 1}
	_, err = s.Callback(context.Background(), map[string]envelope.Envelope{"unified": env})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	logData, err := backend.Read(context.Background(), "unified.log")
	require.NoError(t, err)
	assert.Contains(t, string(logData), "caption")
}
