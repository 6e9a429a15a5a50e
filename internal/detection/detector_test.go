package detection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

type fixtureDetector struct {
	dets []envelope.Detection
	err  error
}

func (f *fixtureDetector) Detect(ctx context.Context, image []byte) ([]envelope.Detection, error) {
	return f.dets, f.err
}

func TestStage_FiltersByConfidenceAndClass(t *testing.T) {
	det := &fixtureDetector{dets: []envelope.Detection{
		{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"},
		{BBox: envelope.BBox{1, 1, 10, 10}, Score: 0.2, ClassID: "person"},
		{BBox: envelope.BBox{2, 2, 10, 10}, Score: 0.9, ClassID: "car"},
	}}
	cfg := Config{ConfidenceScore: 0.5, Classes: []string{"person"}}
	s := New(cfg, det)

	out, err := s.Process(context.Background(), envelope.Envelope{CameraID: "cam1"}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "person", out[0].ClassID)
}

func TestStage_PredictsWhenSyncSkipped(t *testing.T) {
	det := &fixtureDetector{dets: []envelope.Detection{
		{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"},
	}}
	cfg := Config{ConfidenceScore: 0.5, Prediction: true, ProcessNoise: 1e-2, MeasurementNoise: 1e-1}
	s := New(cfg, det)

	_, err := s.Process(context.Background(), envelope.Envelope{CameraID: "cam1"}, false)
	require.NoError(t, err)

	predicted, err := s.Process(context.Background(), envelope.Envelope{CameraID: "cam1"}, true)
	require.NoError(t, err)
	require.Len(t, predicted, 1)
	assert.True(t, predicted[0].Predicted)
}
