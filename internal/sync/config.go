package sync

import (
	"flag"
	"time"
)

// Type selects how sync keys are derived from an envelope.
type Type string

const (
	// TypeNumber buckets by frame number.
	TypeNumber Type = "number"
	// TypeTimestamp buckets by floor(timestamp / tol).
	TypeTimestamp Type = "timestamp"
	// TypeNone disables the engine: every envelope is accepted and no
	// buffering happens.
	TypeNone Type = "none"
)

// Config is a Frame-Sync Engine configuration (spec §4.B, §6).
type Config struct {
	Type                 Type          `yaml:"type"`
	BacklogThreshold     int           `yaml:"backlog-threshold"`
	BacklogCheckInterval time.Duration `yaml:"backlog-check-interval"`
	FPS                  int           `yaml:"fps"`
	RetentionTime        time.Duration `yaml:"retention-time"`
	LatencyThreshold     time.Duration `yaml:"latency-threshold"`
	IgnoreInitialDelay   bool          `yaml:"ignore-initial-delay"`
	EnableSequencing     bool          `yaml:"enable-sequencing"`
	SeekToEnd            bool          `yaml:"seek-to-end"`
	Unify                bool          `yaml:"unify"`
}

// RegisterFlags registers cfg's flags with sensible defaults, following
// the teacher's Config.RegisterFlags convention.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar((*string)(&c.Type), prefix+"sync.type", string(TypeNumber), "frame-sync mode: number, timestamp, or none")
	f.IntVar(&c.BacklogThreshold, prefix+"sync.backlog-threshold", 50, "max buffered sync groups before forced eviction")
	f.DurationVar(&c.BacklogCheckInterval, prefix+"sync.backlog-check-interval", 5*time.Second, "how often to check the backlog threshold")
	f.IntVar(&c.FPS, prefix+"sync.fps", 30, "declared camera fps, used to derive the timestamp bucket width")
	f.DurationVar(&c.RetentionTime, prefix+"sync.retention-time", 10*time.Second, "max wall-clock age of a buffered entry")
	f.DurationVar(&c.LatencyThreshold, prefix+"sync.latency-threshold", 2*time.Second, "max allowed lag before an intra-camera frame is skipped")
	f.BoolVar(&c.IgnoreInitialDelay, prefix+"sync.ignore-initial-delay", false, "skip the WAIT phase during the first group formation")
	f.BoolVar(&c.EnableSequencing, prefix+"sync.enable-sequencing", false, "reorder per-camera arrivals into monotonic order before deposit")
	f.BoolVar(&c.SeekToEnd, prefix+"sync.seek-to-end", false, "bypass buffering; always process only the most-recently-arrived envelope")
	f.BoolVar(&c.Unify, prefix+"sync.unify", false, "inter-camera unify mode: only emit complete cross-camera groups")
}

// tol returns the admission tolerance: 1/fps in timestamp mode, 1 in
// number mode (spec §4.B).
func (c Config) tol() float64 {
	if c.Type == TypeTimestamp {
		if c.FPS <= 0 {
			return 1
		}
		return 1 / float64(c.FPS)
	}
	return 1
}
