package main

import (
	"flag"

	"github.com/grafana/mcmot/internal/analytics"
	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/capture"
	"github.com/grafana/mcmot/internal/detection"
	"github.com/grafana/mcmot/internal/objstore"
	"github.com/grafana/mcmot/internal/reid"
	"github.com/grafana/mcmot/internal/sync"
	"github.com/grafana/mcmot/internal/trackerpkg"
	"github.com/grafana/mcmot/internal/unify"
)

// Config is the single-process dev-mode configuration: every stage's
// config struct in one place, wired together by a dskit/modules graph
// instead of one config struct per binary (spec §4.J single-binary
// target, mirroring the teacher's SingleBinary target in
// cmd/tempo/app/modules.go).
type Config struct {
	Target string `yaml:"target"`

	Broker     broker.Config     `yaml:"broker"`
	Capture    capture.Config    `yaml:"capture"`
	Detection  detection.Config  `yaml:"detection"`
	ReID       reid.Config       `yaml:"reid"`
	Tracker    trackerpkg.Config `yaml:"tracker"`
	Unify      unify.Config      `yaml:"unify"`
	Analytics  analytics.Config  `yaml:"analytics"`

	Pipeline    string `yaml:"pipeline"`
	MetricsAddr string `yaml:"metrics-addr"`
	LogLevel    string `yaml:"log-level"`
}

// DefaultConfig wires every stage's defaults. The topic names connecting
// the stages are set separately by applyTopology, which modules.go calls.
func DefaultConfig() Config {
	return Config{
		Target:    SingleBinary,
		Pipeline:  "default",
		Detection: detection.Config{ConfidenceScore: 0.5},
		ReID:      reid.DefaultConfig(),
		Tracker:   trackerpkg.DefaultConfig(),
		Unify:     unify.DefaultConfig(),
		Analytics: analytics.DefaultConfig(),
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Target, prefix+"target", SingleBinary, "module to run: capture, detection, reid, tracker, unify, analytics, or all")
	f.StringVar(&c.Pipeline, prefix+"pipeline", "default", "pipeline name stamped across every stage")
	f.StringVar(&c.MetricsAddr, prefix+"metrics-addr", ":9090", "address to serve /metrics on")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")

	c.Broker.RegisterFlags(prefix, f)
	c.Capture.RegisterFlags(prefix, f)
	c.Detection.RegisterFlags(prefix, f)
	c.ReID.RegisterFlags(prefix, f)
	c.Tracker.RegisterFlags(prefix, f)
	f.StringVar(&c.Unify.Pipeline, prefix+"unify.pipeline", "", "pipeline name, stamped on output paths")
	f.BoolVar(&c.Unify.VideoEnabled, prefix+"unify.video-enabled", true, "append each composed grid to a combined motion-JPEG video")
	c.Unify.Output.RegisterFlags(prefix+"unify.", f)
	c.Analytics.RegisterFlags(prefix, f)
}

// topology names the in-process topics linking the stages, all served by
// one in-memory broker.Broker instance shared across every module.
const (
	topicCapture   = "capture-out"
	topicDetection = "detection-out"
	topicReID      = "reid-out"
	topicTracker   = "tracker-out"
	topicUnified   = "unify-out"
)

func (c *Config) applyTopology() {
	c.Capture.OutputTopic = topicCapture
	c.Capture.Pipeline = c.Pipeline
	c.Detection.Classes = nil
	c.Tracker.IgnoreCapture = false
	c.Unify.Pipeline = c.Pipeline
	c.Unify.Sync.Unify = true
	c.Unify.Sync.Type = sync.TypeNumber
	c.Analytics.Pipeline = c.Pipeline
	if c.Analytics.Output.Backend == "" {
		c.Analytics.Output = objstore.DefaultConfig()
	}
	if c.Unify.Output.Backend == "" {
		c.Unify.Output = objstore.DefaultConfig()
	}
}
