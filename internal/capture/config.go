package capture

import (
	"flag"
	"time"

	"github.com/grafana/mcmot/internal/sync"
)

// CameraConfig describes one camera feed (spec §4.D).
type CameraConfig struct {
	CameraID string `yaml:"camera-id"`
	URI      string `yaml:"uri"`
	FPS      int    `yaml:"fps"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// Config configures a CaptureStage.
type Config struct {
	Pipeline       string        `yaml:"pipeline"`
	ControlTopic   string        `yaml:"control-topic"`
	OutputTopic    string        `yaml:"output-topic"`
	Camera         CameraConfig  `yaml:"camera"`
	Sync           sync.Config   `yaml:"sync"`
	ReconnectBase  time.Duration `yaml:"reconnect-base"`
	ReconnectMax   time.Duration `yaml:"reconnect-max"`
}

// RegisterFlags registers cfg's flags.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Pipeline, prefix+"capture.pipeline", "", "pipeline name")
	f.StringVar(&c.ControlTopic, prefix+"capture.control-topic", "", "control-signal topic for HOLD/RESUME/STOP")
	f.StringVar(&c.OutputTopic, prefix+"capture.output-topic", "capture-out", "topic to produce captured envelopes to")
	f.StringVar(&c.Camera.CameraID, prefix+"capture.camera-id", "", "camera identity stamped on every envelope")
	f.StringVar(&c.Camera.URI, prefix+"capture.uri", "", "camera source URI (file path or live stream URL)")
	f.IntVar(&c.Camera.FPS, prefix+"capture.fps", 30, "declared camera fps")
	f.IntVar(&c.Camera.Width, prefix+"capture.width", 640, "fixture frame width when no real decoder is wired")
	f.IntVar(&c.Camera.Height, prefix+"capture.height", 480, "fixture frame height when no real decoder is wired")
	f.DurationVar(&c.ReconnectBase, prefix+"capture.reconnect-base", 200*time.Millisecond, "base reconnect backoff")
	f.DurationVar(&c.ReconnectMax, prefix+"capture.reconnect-max", 30*time.Second, "max reconnect backoff")

	c.Sync.RegisterFlags(prefix+"capture.", f)
}
