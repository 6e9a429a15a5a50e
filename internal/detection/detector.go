// Package detection implements the Detection Stage (spec §4.E): running
// an external detector over each captured frame, filtering by confidence
// and class, and falling back to a Kalman-predicted bounding box when a
// frame was sync-skipped and prediction is enabled.
package detection

import (
	"context"
	"flag"
	"strings"

	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/kalman"
)

// Detector is the external collaborator (spec §1) that turns an encoded
// image into raw detections.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]envelope.Detection, error)
}

// Config configures a DetectionStage.
type Config struct {
	ConfidenceScore  float64  `yaml:"confidence-score"`
	Classes          []string `yaml:"classes"`
	Prediction       bool     `yaml:"prediction"`
	ProcessNoise     float64  `yaml:"process-noise"`
	MeasurementNoise float64  `yaml:"measurement-noise"`
}

// RegisterFlags registers cfg's scalar flags; Classes is YAML-only, like
// other slice-valued settings in this codebase.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.Float64Var(&c.ConfidenceScore, prefix+"detection.confidence-score", 0.5, "minimum detection score to keep")
	f.BoolVar(&c.Prediction, prefix+"detection.prediction", false, "predict with Kalman when a frame is sync-skipped")
	f.Float64Var(&c.ProcessNoise, prefix+"detection.process-noise", 1e-2, "Kalman process noise variance")
	f.Float64Var(&c.MeasurementNoise, prefix+"detection.measurement-noise", 1e-1, "Kalman measurement noise variance")
}

// NoopDetector returns no detections for every frame. It is the default
// Detector a worker binary wires when no real model-serving endpoint is
// configured, the same way capture.FixtureSource stands in for a real
// decoder (spec §1: Detector is an external collaborator this system
// does not implement).
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, []byte) ([]envelope.Detection, error) { return nil, nil }

func (c Config) classAllowed(classID string) bool {
	if len(c.Classes) == 0 {
		return true
	}
	for _, allowed := range c.Classes {
		if strings.EqualFold(allowed, classID) {
			return true
		}
	}
	return false
}

// Stage holds per-camera Kalman predictors used to carry a last-known
// detection forward when Prediction is enabled.
type Stage struct {
	cfg      Config
	detector Detector

	lastKalman map[string][]*kalman.State
	lastClass  map[string][]string
}

// New constructs a detection Stage.
func New(cfg Config, detector Detector) *Stage {
	return &Stage{
		cfg:        cfg,
		detector:   detector,
		lastKalman: map[string][]*kalman.State{},
		lastClass:  map[string][]string{},
	}
}

// Process runs detection on env and returns its filtered, possibly
// predicted, detection set. predictedOnly is true when the image was not
// actually run through the detector (frame arrived as a sync-skip
// placeholder) and a Kalman prediction stood in for a fresh detection.
func (s *Stage) Process(ctx context.Context, env envelope.Envelope, predictedOnly bool) ([]envelope.Detection, error) {
	if predictedOnly && s.cfg.Prediction {
		return s.predict(env.CameraID), nil
	}

	raw, err := s.detector.Detect(ctx, env.ImageBytes)
	if err != nil {
		return nil, err
	}

	filtered := make([]envelope.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Score < s.cfg.ConfidenceScore {
			continue
		}
		if !s.cfg.classAllowed(d.ClassID) {
			continue
		}
		filtered = append(filtered, d)
	}

	s.remember(env.CameraID, filtered)
	return filtered, nil
}

func (s *Stage) remember(cameraID string, dets []envelope.Detection) {
	states := make([]*kalman.State, len(dets))
	classes := make([]string, len(dets))
	for i, d := range dets {
		st := kalman.NewState(d.BBox, s.cfg.ProcessNoise, s.cfg.MeasurementNoise)
		st.Update(d.BBox)
		states[i] = st
		classes[i] = d.ClassID
	}
	s.lastKalman[cameraID] = states
	s.lastClass[cameraID] = classes
}

func (s *Stage) predict(cameraID string) []envelope.Detection {
	states := s.lastKalman[cameraID]
	classes := s.lastClass[cameraID]
	out := make([]envelope.Detection, len(states))
	for i, st := range states {
		out[i] = envelope.Detection{
			BBox:      st.Predict(1),
			ClassID:   classes[i],
			Score:     1,
			Predicted: true,
		}
	}
	return out
}
