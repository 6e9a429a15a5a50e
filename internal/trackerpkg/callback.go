package trackerpkg

import (
	"context"
	"fmt"
	"sync"

	"github.com/grafana/mcmot/internal/envelope"
)

// cameraState bundles one camera's live Tracker with the bookkeeping the
// capture-driven predict-only path needs, all guarded by one mutex so the
// detection-topic (primary) and capture-topic (secondary) consumer loops
// can drive the same camera's state concurrently (spec §4.G).
type cameraState struct {
	mu sync.Mutex

	tracker *Tracker

	sawDetectionKey  bool
	lastDetectionKey int64

	capturesSeen      int
	capturesPredicted int
}

// Stage holds one cameraState per camera, routing each envelope to its
// camera's state under a shared RWMutex (spec §4.G / §9: avoids a cyclic
// detection<->tracker module dependency by giving the tracker its own
// independent per-camera state instead).
type Stage struct {
	cfg Config

	mu    sync.RWMutex
	cams  map[string]*cameraState
}

// New constructs a tracker Stage.
func New(cfg Config) *Stage {
	return &Stage{cfg: cfg, cams: map[string]*cameraState{}}
}

func (s *Stage) cameraStateFor(cameraID string) *cameraState {
	s.mu.RLock()
	cs, ok := s.cams[cameraID]
	s.mu.RUnlock()
	if ok {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok = s.cams[cameraID]; ok {
		return cs
	}
	cs = &cameraState{tracker: NewTracker(s.cfg)}
	s.cams[cameraID] = cs
	return cs
}

func (s *Stage) soleFrame(frames map[string]envelope.Envelope) (envelope.Envelope, error) {
	if len(frames) != 1 {
		return envelope.Envelope{}, fmt.Errorf("trackerpkg: expected exactly one camera per frame, got %d", len(frames))
	}
	var env envelope.Envelope
	for _, v := range frames {
		env = v
	}
	return env, nil
}

// Callback is the primary (detection-topic) consumer loop's Stage Runtime
// callback: detections in the envelope are associated against that
// camera's live track set, and the camera's detection-stream watermark is
// advanced so the secondary loop can tell a fresh sync_key apart from one
// it has already seen.
func (s *Stage) Callback(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	env, err := s.soleFrame(frames)
	if err != nil {
		return nil, err
	}

	cs := s.cameraStateFor(env.CameraID)
	cs.mu.Lock()
	env.Metadata.Tracks = cs.tracker.Step(env.Metadata.Detections)
	cs.sawDetectionKey = true
	cs.lastDetectionKey = env.FrameNumber
	cs.mu.Unlock()

	return &env, nil
}

// CallbackCapture is the secondary (capture-topic) consumer loop's Stage
// Runtime callback (spec §4.G): on each capture frame, when
// !IgnoreCapture and the frame's sync_key hasn't already been covered by
// the detection stream and the camera's running predicted-frame fraction
// stays below PredictionFactor, it runs Kalman predict-only on the
// camera's confirmed tracks. Otherwise the track set is left untouched
// and the envelope is passed through carrying its existing snapshot.
func (s *Stage) CallbackCapture(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	env, err := s.soleFrame(frames)
	if err != nil {
		return nil, err
	}

	cs := s.cameraStateFor(env.CameraID)

	if s.cfg.IgnoreCapture {
		cs.mu.Lock()
		env.Metadata.Tracks = cs.tracker.snapshot()
		cs.mu.Unlock()
		return &env, nil
	}

	cs.mu.Lock()
	alreadySeen := cs.sawDetectionKey && env.FrameNumber == cs.lastDetectionKey
	fraction := 0.0
	if cs.capturesSeen > 0 {
		fraction = float64(cs.capturesPredicted) / float64(cs.capturesSeen)
	}
	shouldPredict := !alreadySeen && fraction < s.cfg.PredictionFactor
	cs.capturesSeen++
	if shouldPredict {
		cs.capturesPredicted++
		env.Metadata.Tracks = cs.tracker.PredictOnly()
		env.Metadata.Predicted = true
	} else {
		env.Metadata.Tracks = cs.tracker.snapshot()
	}
	cs.mu.Unlock()

	return &env, nil
}
