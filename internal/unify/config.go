package unify

import (
	"flag"

	"github.com/grafana/mcmot/internal/objstore"
	"github.com/grafana/mcmot/internal/sync"
)

// Config configures the Unification Stage (spec §4.H). A single
// Unification worker is enforced by Control Plane's replication cap for
// this stage, since sync.Engine's unify-mode state is not shardable
// across processes.
type Config struct {
	Pipeline string `yaml:"pipeline"`

	Sync   sync.Config    `yaml:"sync"`
	Output objstore.Config `yaml:"output"`

	// VideoEnabled toggles appending each composed grid to a combined
	// motion-JPEG video in addition to writing the per-group still.
	VideoEnabled bool `yaml:"video-enabled"`
}

// DefaultConfig pins sync.Unify=true, the one required deviation from
// sync.Config's own defaults for this stage.
func DefaultConfig() Config {
	cfg := Config{Output: objstore.DefaultConfig(), VideoEnabled: true}
	cfg.Sync.Unify = true
	cfg.Sync.Type = sync.TypeNumber
	return cfg
}

// RegisterFlags registers cfg's flags, composing the Sync sub-config the
// way the teacher composes nested config structs. Output's flags are not
// registered here; the binaries register them separately.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Pipeline, prefix+"unify.pipeline", "", "pipeline name, stamped on output paths")
	f.BoolVar(&c.VideoEnabled, prefix+"unify.video-enabled", true, "append each composed grid to a combined motion-JPEG video")
	c.Sync.RegisterFlags(prefix, f)
}
