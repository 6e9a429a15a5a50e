package unify

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestComposeGrid_RejectsEmptyGroup(t *testing.T) {
	_, err := ComposeGrid(map[string]envelope.Envelope{})
	assert.Error(t, err)
}

func TestComposeGrid_ProducesDecodableJPEGSizedForGrid(t *testing.T) {
	frames := map[string]envelope.Envelope{
		"cam1": {CameraID: "cam1", ImageBytes: solidJPEG(t, 10, 10, color.White)},
		"cam2": {CameraID: "cam2", ImageBytes: solidJPEG(t, 10, 10, color.Black)},
	}

	out, err := ComposeGrid(frames)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	// two cameras -> ceil(sqrt(2))=2 columns, 1 row, each cell 10x10
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
}
