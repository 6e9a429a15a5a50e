package reid

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/grafana/mcmot/internal/envelope"
)

// JPEGCropper decodes a JPEG frame and crops a bounding box out of it.
// Pure 2D raster slicing has no third-party library anywhere in the
// retrieved pack, so this goes through stdlib image/draw directly.
type JPEGCropper struct{}

func (JPEGCropper) Crop(imgBytes []byte, _ [3]int, bbox envelope.BBox) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("reid: decode frame: %w", err)
	}

	rect := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[0]+bbox[2]), int(bbox[1]+bbox[3])).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("reid: bbox %v does not intersect frame bounds %v", bbox, img.Bounds())
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("reid: encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
