package reid

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, crop []byte) (Embedding, error) {
	return Embedding{float64(len(crop)), 1, 0}, nil
}

func makeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestStage_CallbackAssignsReIDPerDetection(t *testing.T) {
	img := makeTestJPEG(t, 64, 64)
	env := envelope.Envelope{
		CameraID:   "cam1",
		ImageBytes: img,
		ImageShape: [3]int{64, 64, 3},
		Metadata: envelope.Metadata{
			Detections: []envelope.Detection{
				{BBox: envelope.BBox{0, 0, 10, 10}, ClassID: "person"},
			},
		},
	}

	s := New(fixedEmbedder{}, JPEGCropper{}, NewMemoryStore(DefaultConfig()))
	out, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": env})
	require.NoError(t, err)
	require.Len(t, out.Metadata.ReID, 1)
	assert.Equal(t, 0, out.Metadata.ReID[0].DetectionIndex)
	assert.NotEmpty(t, out.Metadata.ReID[0].ReIDID)
}
