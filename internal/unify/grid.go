// Package unify implements the Unification Stage (spec §4.H): composing
// a synchronized cross-camera frame group into a single image, appending
// it to a combined video, and persisting output via a pluggable backend.
package unify

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
	"sort"

	"github.com/grafana/mcmot/internal/envelope"
)

// ComposeGrid lays frames out row-major into one JPEG, ordered by
// camera_id for determinism. No grid-compositing library appears
// anywhere in the retrieved pack and this is pure 2D raster placement,
// squarely stdlib image/draw territory.
func ComposeGrid(frames map[string]envelope.Envelope) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("unify: cannot compose an empty frame group")
	}

	cameraIDs := make([]string, 0, len(frames))
	for id := range frames {
		cameraIDs = append(cameraIDs, id)
	}
	sort.Strings(cameraIDs)

	decoded := make([]image.Image, len(cameraIDs))
	maxW, maxH := 0, 0
	for i, id := range cameraIDs {
		img, err := jpeg.Decode(bytes.NewReader(frames[id].ImageBytes))
		if err != nil {
			return nil, fmt.Errorf("unify: decode frame for camera %q: %w", id, err)
		}
		decoded[i] = img
		if b := img.Bounds(); b.Dx() > maxW {
			maxW = b.Dx()
		}
		if b := img.Bounds(); b.Dy() > maxH {
			maxH = b.Dy()
		}
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(decoded)))))
	rows := int(math.Ceil(float64(len(decoded)) / float64(cols)))

	grid := image.NewRGBA(image.Rect(0, 0, cols*maxW, rows*maxH))
	for i, img := range decoded {
		col := i % cols
		row := i / cols
		dst := image.Rect(col*maxW, row*maxH, col*maxW+img.Bounds().Dx(), row*maxH+img.Bounds().Dy())
		draw.Draw(grid, dst, img, img.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, grid, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("unify: encode composed grid: %w", err)
	}
	return buf.Bytes(), nil
}
