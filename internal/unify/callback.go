package unify

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/objstore"
)

// Stage composes synchronized cross-camera frame groups (handed to it
// already-complete by the Stage Runtime's sync.Engine Deposit path) into
// a grid still and a combined video, persisting both via an objstore
// backend, then forwards a synthetic envelope carrying the composed
// grid onward to Analytics.
type Stage struct {
	cfg     Config
	backend objstore.ReadWriter
	video   VideoWriter
}

// New constructs a Unification Stage writing to backend. video may be
// nil when cfg.VideoEnabled is false.
func New(cfg Config, backend objstore.ReadWriter) *Stage {
	s := &Stage{cfg: cfg, backend: backend}
	if cfg.VideoEnabled {
		s.video = NewMotionJPEGWriter(backend, "combined.mp4")
	}
	return s
}

// syncKeyOf derives a stable group identifier from the set of incoming
// frames' frame numbers, for naming output/<sync_key>/.
func syncKeyOf(frames map[string]envelope.Envelope) string {
	keys := make([]int64, 0, len(frames))
	for _, env := range frames {
		keys = append(keys, env.FrameNumber)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if len(keys) == 0 {
		return "0"
	}
	return strconv.FormatInt(keys[0], 10)
}

// Callback implements the Stage Runtime's callback shape (spec §4.H) for
// a group that completed normally via sync.Engine.Deposit.
func (s *Stage) Callback(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	return s.compose(ctx, frames, false)
}

// CallbackPartial is the Stage Runtime's evicted-group hook (spec §7):
// invoked instead of Callback when a group is flushed early by a
// backlog/retention eviction rather than completing via Deposit. The
// composed output is identical except Metadata.Incomplete is set, so
// Analytics (internal/analytics/stage.go) can tell the two cases apart.
func (s *Stage) CallbackPartial(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	return s.compose(ctx, frames, true)
}

func (s *Stage) compose(ctx context.Context, frames map[string]envelope.Envelope, incomplete bool) (*envelope.Envelope, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("unify: empty frame group")
	}

	syncKey := syncKeyOf(frames)

	for camID, env := range frames {
		name := fmt.Sprintf("%s/frame_%s.jpg", syncKey, camID)
		if err := s.backend.Write(ctx, name, env.ImageBytes); err != nil {
			return nil, fmt.Errorf("unify: write %q: %w", name, err)
		}
	}

	jpeg, err := ComposeGrid(frames)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s/combined.jpg", syncKey)
	if err := s.backend.Write(ctx, name, jpeg); err != nil {
		return nil, fmt.Errorf("unify: write %q: %w", name, err)
	}

	if s.video != nil {
		if err := s.video.AppendFrame(ctx, jpeg); err != nil {
			return nil, fmt.Errorf("unify: append video frame for group %q: %w", syncKey, err)
		}
	}

	out := envelope.Envelope{
		CameraID:    "unified",
		FrameNumber: firstFrameNumber(frames),
		ImageBytes:  jpeg,
		Metadata:    envelope.Metadata{Cameras: cameraIDs(frames), Incomplete: incomplete},
	}
	return &out, nil
}

func cameraIDs(frames map[string]envelope.Envelope) []string {
	ids := make([]string, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func firstFrameNumber(frames map[string]envelope.Envelope) int64 {
	var n int64 = -1
	for _, env := range frames {
		if n < 0 || env.FrameNumber < n {
			n = env.FrameNumber
		}
	}
	return n
}

// Close releases the stage's video writer, flushing any buffered frames.
func (s *Stage) Close() error {
	if s.video == nil {
		return nil
	}
	return s.video.Close()
}
