package detection

import (
	"context"
	"fmt"

	"github.com/grafana/mcmot/internal/envelope"
)

// Callback adapts Stage.Process to the Stage Runtime's callback shape: it
// is passed a single-camera frame map (detection never runs in unify
// mode) and returns the envelope with its Metadata.Detections populated.
func (s *Stage) Callback(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	if len(frames) != 1 {
		return nil, fmt.Errorf("detection: expected exactly one camera per frame, got %d", len(frames))
	}
	var env envelope.Envelope
	for _, v := range frames {
		env = v
	}

	dets, err := s.Process(ctx, env, false)
	if err != nil {
		return nil, fmt.Errorf("detection: detect: %w", err)
	}

	env.Metadata.Detections = dets
	return &env, nil
}

// SkipCallback implements internal/stagerun's skip hook (spec §4.E): the
// Stage Runtime's default behavior for a Sync-Engine Skip decision is to
// drop the message before any stage ever sees it, which would make
// Prediction permanently dead code. When Prediction is enabled, this runs
// the Kalman-predict-on-skip path instead of dropping the frame; when
// disabled, it drops the frame exactly like the default "no skip hook"
// behavior.
func (s *Stage) SkipCallback(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	if !s.cfg.Prediction {
		return nil, nil
	}
	if len(frames) != 1 {
		return nil, fmt.Errorf("detection: expected exactly one camera per frame, got %d", len(frames))
	}
	var env envelope.Envelope
	for _, v := range frames {
		env = v
	}

	dets, err := s.Process(ctx, env, true)
	if err != nil {
		return nil, fmt.Errorf("detection: predict on skip: %w", err)
	}

	env.Metadata.Detections = dets
	return &env, nil
}
