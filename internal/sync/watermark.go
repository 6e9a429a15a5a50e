package sync

import "time"

// Watermark is the last accepted (key, timestamp, wall-clock arrival) for
// one camera (intra-camera) or for the pipeline as a whole (inter-camera,
// spec §3 Camera Watermark / Glossary).
type Watermark struct {
	Key       float64
	Timestamp float64
	ArrivedAt time.Time
}

// keyFor returns the raw admission key for an incoming frame under cfg's
// sync type: the frame number in number mode, the timestamp in timestamp
// mode. Number mode never uses fractional keys, so frameNumber is exact;
// timestamp mode compares continuous timestamps directly (bucketing into
// SyncKey only happens for inter-camera group formation, see group.go).
func keyFor(cfg Config, frameNumber int64, ts float64) float64 {
	if cfg.Type == TypeTimestamp {
		return ts
	}
	return float64(frameNumber)
}

// expectedDelay converts a key delta into a wall-clock delay: one unit of
// key equals 1/fps seconds in number mode (one frame), and equals one
// second of key in timestamp mode (timestamps are already seconds).
func expectedDelay(cfg Config, deltaKey float64, fps int) time.Duration {
	if cfg.Type == TypeTimestamp {
		return time.Duration(deltaKey * float64(time.Second))
	}
	if fps <= 0 {
		fps = cfg.FPS
	}
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(deltaKey / float64(fps) * float64(time.Second))
}
