// Package analytics implements the Analytics Stage (spec §4.I): batching
// unified frame groups, captioning them via an external LLM collaborator,
// and recording the result to a log, a spreadsheet, and an operator-facing
// console table.
package analytics

import (
	"flag"
	"time"

	"github.com/grafana/mcmot/internal/objstore"
)

// Config configures the Analytics stage.
type Config struct {
	Pipeline string `yaml:"pipeline"`

	// LogWaitTime is how often outstanding unified groups are batched
	// and sent to the LLM, rather than captioned one at a time.
	LogWaitTime time.Duration `yaml:"log-wait-time"`
	Prompt      string        `yaml:"prompt"`

	Output objstore.Config `yaml:"output"`
}

// DefaultConfig batches every 5 seconds with a generic captioning prompt.
func DefaultConfig() Config {
	return Config{
		LogWaitTime: 5 * time.Second,
		Prompt:      "Describe the scene captured across these synchronized camera views.",
		Output:      objstore.DefaultConfig(),
	}
}

// RegisterFlags registers cfg's flags.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Pipeline, prefix+"analytics.pipeline", "", "pipeline name, stamped on report rows")
	f.DurationVar(&c.LogWaitTime, prefix+"analytics.log-wait-time", 5*time.Second, "how often batched unified groups are captioned and flushed")
	f.StringVar(&c.Prompt, prefix+"analytics.prompt", "Describe the scene captured across these synchronized camera views.", "prompt sent to the LLM collaborator alongside each composed frame")
	c.Output.RegisterFlags(prefix, f)
}
