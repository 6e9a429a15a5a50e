package trackerpkg

import (
	"flag"

	"github.com/google/uuid"

	"github.com/grafana/mcmot/internal/envelope"
	"github.com/grafana/mcmot/internal/kalman"
)

// State is a track's lifecycle phase (spec §4.G).
type State int

const (
	Tentative State = iota
	Confirmed
	Deleted
)

func (s State) String() string {
	switch s {
	case Tentative:
		return "TENTATIVE"
	case Confirmed:
		return "CONFIRMED"
	default:
		return "DELETED"
	}
}

// Track is one per-camera tracked object.
type Track struct {
	ID      string
	ClassID string
	State   State
	filter  *kalman.State

	hits       int
	misses     int
	age        int
	confirmHit int
}

func newTrack(det envelope.Detection, confirmAfterHits int, processNoise, measurementNoise float64) *Track {
	t := &Track{
		ID:         uuid.NewString(),
		ClassID:    det.ClassID,
		State:      Tentative,
		filter:     kalman.NewState(det.BBox, processNoise, measurementNoise),
		hits:       1,
		confirmHit: confirmAfterHits,
	}
	if t.hits >= t.confirmHit {
		t.State = Confirmed
	}
	return t
}

// BBox returns the track's current estimated bounding box.
func (t *Track) BBox() envelope.BBox {
	b := t.filter.BBox()
	return envelope.BBox(b)
}

// predict advances the track's Kalman state by one frame interval.
func (t *Track) predict() {
	t.filter.Predict(1)
	t.age++
}

func (t *Track) markHit(det envelope.Detection) {
	t.filter.Update(det.BBox)
	t.hits++
	t.misses = 0
	if t.State == Tentative && t.hits >= t.confirmHit {
		t.State = Confirmed
	}
}

func (t *Track) markMiss(maxMisses int) {
	t.misses++
	if t.misses > maxMisses {
		t.State = Deleted
	}
}

// Config configures a Tracker's association thresholds (spec §4.G, §6).
type Config struct {
	IoUThreshold     float64 `yaml:"iou-threshold"`
	NMSThreshold     float64 `yaml:"nms-threshold"`
	ConfirmAfterHits int     `yaml:"confirm-after-hits"`
	MaxMisses        int     `yaml:"max-misses"`
	ProcessNoise     float64 `yaml:"process-noise"`
	MeasurementNoise float64 `yaml:"measurement-noise"`
	IgnoreCapture    bool    `yaml:"ignore-capture"`

	// PredictionFactor bounds the capture-driven Kalman predict-only path
	// (spec §4.G): a capture frame whose sync_key hasn't been seen on the
	// detection stream is predicted only while the camera's running
	// predicted-frame fraction stays below this value.
	PredictionFactor float64 `yaml:"prediction-factor"`
	// OnlyConfirmedTracks drops TENTATIVE tracks from every emitted track
	// list when true.
	OnlyConfirmedTracks bool `yaml:"only-confirmed-tracks"`
}

// DefaultConfig mirrors the decided defaults recorded for the Kalman
// process/measurement noise and ReID open questions.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:     0.3,
		NMSThreshold:     0.5,
		ConfirmAfterHits: 3,
		MaxMisses:        5,
		ProcessNoise:     1e-2,
		MeasurementNoise: 1e-1,
		PredictionFactor: 0.5,
	}
}

// RegisterFlags registers cfg's flags.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.Float64Var(&c.IoUThreshold, prefix+"tracker.iou-threshold", 0.3, "minimum IoU for a detection to match a track")
	f.Float64Var(&c.NMSThreshold, prefix+"tracker.nms-threshold", 0.5, "IoU threshold for non-max suppression")
	f.IntVar(&c.ConfirmAfterHits, prefix+"tracker.confirm-after-hits", 3, "consecutive hits before a tentative track is confirmed")
	f.IntVar(&c.MaxMisses, prefix+"tracker.max-misses", 5, "consecutive misses before a track is deleted")
	f.Float64Var(&c.ProcessNoise, prefix+"tracker.process-noise", 1e-2, "Kalman filter process noise")
	f.Float64Var(&c.MeasurementNoise, prefix+"tracker.measurement-noise", 1e-1, "Kalman filter measurement noise")
	f.BoolVar(&c.IgnoreCapture, prefix+"tracker.ignore-capture", false, "unconditionally skip the Kalman-on-capture predict-only path")
	f.Float64Var(&c.PredictionFactor, prefix+"tracker.prediction-factor", 0.5, "max running fraction of capture frames the predict-only path may cover")
	f.BoolVar(&c.OnlyConfirmedTracks, prefix+"tracker.only-confirmed-tracks", false, "drop TENTATIVE tracks from every emitted track list")
}

// Tracker holds one camera's live track set and performs per-frame
// detection-to-track association.
type Tracker struct {
	cfg    Config
	tracks map[string]*Track
}

// NewTracker constructs a Tracker for a single camera.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, tracks: map[string]*Track{}}
}

// Step associates dets against the tracker's live state, advances every
// track's Kalman prediction, and returns the resulting envelope.Track
// list (spec §4.G operation: "update(detections) -> tracks").
func (tr *Tracker) Step(dets []envelope.Detection) []envelope.Track {
	kept := NMS(dets, tr.cfg.NMSThreshold)
	filtered := make([]envelope.Detection, len(kept))
	for i, idx := range kept {
		filtered[i] = dets[idx]
	}

	ids := make([]string, 0, len(tr.tracks))
	for id := range tr.tracks {
		tr.tracks[id].predict()
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		for _, det := range filtered {
			t := newTrack(det, tr.cfg.ConfirmAfterHits, tr.cfg.ProcessNoise, tr.cfg.MeasurementNoise)
			tr.tracks[t.ID] = t
		}
		return tr.snapshot()
	}

	cost := make([][]float64, len(ids))
	for i, id := range ids {
		cost[i] = make([]float64, len(filtered))
		for j, det := range filtered {
			iou := IoU(tr.tracks[id].BBox(), det.BBox)
			if iou < tr.cfg.IoUThreshold {
				cost[i][j] = 1e6
			} else {
				cost[i][j] = 1 - iou
			}
		}
	}

	assignment := hungarian(cost)
	matchedDet := make([]bool, len(filtered))
	for i, id := range ids {
		j := assignment[i]
		if j >= 0 && j < len(filtered) && cost[i][j] < 1e6 {
			tr.tracks[id].markHit(filtered[j])
			matchedDet[j] = true
		} else {
			tr.tracks[id].markMiss(tr.cfg.MaxMisses)
		}
	}

	for j, det := range filtered {
		if matchedDet[j] {
			continue
		}
		t := newTrack(det, tr.cfg.ConfirmAfterHits, tr.cfg.ProcessNoise, tr.cfg.MeasurementNoise)
		tr.tracks[t.ID] = t
	}

	for id, t := range tr.tracks {
		if t.State == Deleted {
			delete(tr.tracks, id)
		}
	}

	return tr.snapshot()
}

// PredictOnly advances every CONFIRMED track's Kalman state by one frame
// interval without touching hit/miss bookkeeping (spec §4.G: the
// capture-driven path "do[es] not update hit count"). Tentative tracks are
// left untouched; a capture frame carries no detections to confirm one.
func (tr *Tracker) PredictOnly() []envelope.Track {
	for _, t := range tr.tracks {
		if t.State == Confirmed {
			t.predict()
		}
	}
	return tr.snapshot()
}

func (tr *Tracker) snapshot() []envelope.Track {
	out := make([]envelope.Track, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		if tr.cfg.OnlyConfirmedTracks && t.State != Confirmed {
			continue
		}
		out = append(out, envelope.Track{
			BBox:      t.BBox(),
			TrackID:   t.ID,
			ClassID:   t.ClassID,
			Confirmed: t.State == Confirmed,
		})
	}
	return out
}

// Len returns the number of live (non-deleted) tracks, for metrics and tests.
func (tr *Tracker) Len() int { return len(tr.tracks) }
