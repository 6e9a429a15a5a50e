package unify

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/objstore"
)

func TestStage_CallbackWritesGridAndForwardsEnvelope(t *testing.T) {
	backend, err := objstore.New(objstore.Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	cfg := DefaultConfig()
	s := New(cfg, backend)
	defer s.Close()

	frames := map[string]envelope.Envelope{
		"cam1": {CameraID: "cam1", FrameNumber: 3, ImageBytes: solidJPEG(t, 8, 8, color.White)},
		"cam2": {CameraID: "cam2", FrameNumber: 3, ImageBytes: solidJPEG(t, 8, 8, color.Black)},
	}

	out, err := s.Callback(context.Background(), frames)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "unified", out.CameraID)
	assert.Equal(t, int64(3), out.FrameNumber)
	assert.NotEmpty(t, out.ImageBytes)
	assert.Equal(t, []string{"cam1", "cam2"}, out.Metadata.Cameras)

	data, err := backend.Read(context.Background(), "3/combined.jpg")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestStage_CallbackRejectsEmptyGroup(t *testing.T) {
	backend, err := objstore.New(objstore.Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	s := New(DefaultConfig(), backend)
	defer s.Close()

	_, err = s.Callback(context.Background(), map[string]envelope.Envelope{})
	assert.Error(t, err)
}
