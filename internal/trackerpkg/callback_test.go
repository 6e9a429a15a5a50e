package trackerpkg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

func TestStage_CallbackTracksAcrossFrames(t *testing.T) {
	s := New(DefaultConfig())

	box := envelope.BBox{5, 5, 10, 10}
	env := envelope.Envelope{CameraID: "cam1", Metadata: envelope.Metadata{
		Detections: []envelope.Detection{{BBox: box, Score: 0.9, ClassID: "person"}},
	}}

	out, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": env})
	require.NoError(t, err)
	require.Len(t, out.Metadata.Tracks, 1)
	assert.False(t, out.Metadata.Tracks[0].Confirmed, "a brand-new track starts tentative")
}

func TestStage_CallbackCapture_IgnoreCaptureSkipsPredictOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IgnoreCapture = true
	s := New(cfg)

	det := envelope.Envelope{CameraID: "cam1", FrameNumber: 0, Metadata: envelope.Metadata{
		Detections: []envelope.Detection{{BBox: envelope.BBox{0, 0, 5, 5}, ClassID: "person"}},
	}}
	_, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": det})
	require.NoError(t, err)

	cap := envelope.Envelope{CameraID: "cam1", FrameNumber: 1}
	out, err := s.CallbackCapture(context.Background(), map[string]envelope.Envelope{"cam1": cap})
	require.NoError(t, err)
	assert.False(t, out.Metadata.Predicted, "ignore_capture must skip the Kalman-on-capture predict-only path entirely")
}

func TestStage_CallbackCapture_AlreadySeenSyncKeySkipsPredict(t *testing.T) {
	s := New(DefaultConfig())

	det := envelope.Envelope{CameraID: "cam1", FrameNumber: 5, Metadata: envelope.Metadata{
		Detections: []envelope.Detection{{BBox: envelope.BBox{0, 0, 5, 5}, ClassID: "person"}},
	}}
	_, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": det})
	require.NoError(t, err)

	cap := envelope.Envelope{CameraID: "cam1", FrameNumber: 5}
	out, err := s.CallbackCapture(context.Background(), map[string]envelope.Envelope{"cam1": cap})
	require.NoError(t, err)
	assert.False(t, out.Metadata.Predicted, "a sync_key already covered by the detection stream must not be predicted")
}

func TestStage_CallbackCapture_PredictsConfirmedTracksThroughGaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmAfterHits = 1
	cfg.PredictionFactor = 2 // fraction tops out at 1, so this never stops predicting
	s := New(cfg)

	box := envelope.BBox{5, 5, 10, 10}
	det := envelope.Envelope{CameraID: "cam1", FrameNumber: 0, Metadata: envelope.Metadata{
		Detections: []envelope.Detection{{BBox: box, ClassID: "person"}},
	}}
	out, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": det})
	require.NoError(t, err)
	require.Len(t, out.Metadata.Tracks, 1)
	require.True(t, out.Metadata.Tracks[0].Confirmed)

	for i := int64(1); i <= 10; i++ {
		cap := envelope.Envelope{CameraID: "cam1", FrameNumber: i}
		out, err = s.CallbackCapture(context.Background(), map[string]envelope.Envelope{"cam1": cap})
		require.NoError(t, err)
		require.True(t, out.Metadata.Predicted)
		require.Len(t, out.Metadata.Tracks, 1, "a predict-only frame must not delete the confirmed track via a miss")
		assert.True(t, out.Metadata.Tracks[0].Confirmed)
	}
}

func TestStage_CallbackCapture_StopsPredictingPastPredictionFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmAfterHits = 1
	cfg.PredictionFactor = 0.5
	s := New(cfg)

	det := envelope.Envelope{CameraID: "cam1", FrameNumber: 0, Metadata: envelope.Metadata{
		Detections: []envelope.Detection{{BBox: envelope.BBox{5, 5, 10, 10}, ClassID: "person"}},
	}}
	_, err := s.Callback(context.Background(), map[string]envelope.Envelope{"cam1": det})
	require.NoError(t, err)

	var sawUnpredicted bool
	for i := int64(1); i <= 10; i++ {
		cap := envelope.Envelope{CameraID: "cam1", FrameNumber: i}
		out, err := s.CallbackCapture(context.Background(), map[string]envelope.Envelope{"cam1": cap})
		require.NoError(t, err)
		if !out.Metadata.Predicted {
			sawUnpredicted = true
		}
	}
	assert.True(t, sawUnpredicted, "once the running predicted fraction reaches prediction_factor, further capture frames must stop predicting")
}
