package reid

import (
	"context"
	"fmt"

	"github.com/grafana/mcmot/internal/envelope"
)

// Embedder is the external collaborator (spec §1) that turns an image
// crop into a feature embedding.
type Embedder interface {
	Embed(ctx context.Context, crop []byte) (Embedding, error)
}

// Cropper extracts a bbox-shaped crop from a full frame's image bytes.
// Exposed as an interface so tests can stub out real image decoding.
type Cropper interface {
	Crop(image []byte, shape [3]int, bbox envelope.BBox) ([]byte, error)
}

// NoopEmbedder returns a zero-length embedding for every crop, so
// CosineSimilarity never exceeds Config.Threshold and every detection
// mints a fresh identity. It is the default Embedder a worker binary
// wires when no real embedding model is configured, the same way
// detection.NoopDetector stands in for a real detector (spec §1).
type NoopEmbedder struct{}

func (NoopEmbedder) Embed(context.Context, []byte) (Embedding, error) { return nil, nil }

// Stage runs the ReID Stage's per-detection embedding/assignment.
type Stage struct {
	embedder Embedder
	cropper  Cropper
	store    Store
}

// New constructs a ReID Stage.
func New(embedder Embedder, cropper Cropper, store Store) *Stage {
	return &Stage{embedder: embedder, cropper: cropper, store: store}
}

// Callback implements the Stage Runtime's callback shape: every detection
// in the envelope's metadata gets a globally-consistent reid_id.
func (s *Stage) Callback(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	if len(frames) != 1 {
		return nil, fmt.Errorf("reid: expected exactly one camera per frame, got %d", len(frames))
	}
	var env envelope.Envelope
	for _, v := range frames {
		env = v
	}

	assignments := make([]envelope.ReIDAssignment, 0, len(env.Metadata.Detections))
	for i, det := range env.Metadata.Detections {
		crop, err := s.cropper.Crop(env.ImageBytes, env.ImageShape, det.BBox)
		if err != nil {
			return nil, fmt.Errorf("reid: crop detection %d: %w", i, err)
		}
		emb, err := s.embedder.Embed(ctx, crop)
		if err != nil {
			return nil, fmt.Errorf("reid: embed detection %d: %w", i, err)
		}
		id, _, err := s.store.Assign(ctx, emb)
		if err != nil {
			return nil, fmt.Errorf("reid: assign identity for detection %d: %w", i, err)
		}
		assignments = append(assignments, envelope.ReIDAssignment{DetectionIndex: i, ReIDID: id})
	}

	env.Metadata.ReID = assignments
	return &env, nil
}
