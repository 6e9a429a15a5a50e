// Command mcmotctl is the Control Plane operator CLI (spec §4.J):
// provisioning topics, starting and stopping a pipeline's worker fleet,
// and publishing HOLD/RESUME/STOP signals to individual cameras.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/common/version"
	"gopkg.in/yaml.v3"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/controlplane"
)

// topologyFile is what -topology points at: one pipeline's stage
// topology plus the broker it should be provisioned and driven through.
type topologyFile struct {
	Pipeline  string                        `yaml:"pipeline"`
	PIDDir    string                        `yaml:"pid-dir"`
	Stages    []controlplane.StageTopology  `yaml:"stages"`
	StopGrace time.Duration                 `yaml:"stop-grace"`
	Broker    broker.Config                 `yaml:"broker"`
}

func (t topologyFile) controlplaneConfig() controlplane.Config {
	cfg := controlplane.DefaultConfig()
	cfg.Pipeline = t.Pipeline
	if t.PIDDir != "" {
		cfg.PIDDir = t.PIDDir
	}
	cfg.Stages = t.Stages
	if t.StopGrace > 0 {
		cfg.StopGrace = t.StopGrace
	}
	return cfg
}

type cli struct {
	Topology string `name:"topology" short:"t" required:"" help:"YAML file describing the pipeline's stage topology and broker."`

	Setup  setupCmd  `cmd:"" help:"Create every stage's topic plus the pipeline's control topic."`
	Start  startCmd  `cmd:"" help:"Spawn every configured stage's worker processes."`
	Stop   stopCmd   `cmd:"" help:"Stop every running worker: SIGTERM, then SIGKILL after the grace period."`
	Signal signalCmd `cmd:"" help:"Publish a HOLD, RESUME, or STOP control signal to one camera."`
	Status statusCmd `cmd:"" help:"List the pipeline's configured stage topology."`

	Version kong.VersionFlag `name:"version" help:"Print version information and exit."`
}

func main() {
	var c cli
	parser := kong.Must(&c,
		kong.Name("mcmotctl"),
		kong.Description("Operator CLI for an MCMOT pipeline's Control Plane."),
		kong.Vars{"version": version.Print("mcmotctl")},
		kong.UsageOnError(),
	)
	ktx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	top, cfg, err := loadTopology(c.Topology)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcmotctl: %v\n", err)
		os.Exit(1)
	}

	br, err := broker.New(top.Broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcmotctl: broker: %v\n", err)
		os.Exit(1)
	}
	mgr := controlplane.New(cfg, br, controlplane.OSSupervisor{})

	if err := ktx.Run(mgr, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mcmotctl: %v\n", err)
		os.Exit(1)
	}
}

func loadTopology(path string) (topologyFile, controlplane.Config, error) {
	var t topologyFile
	buf, err := os.ReadFile(path)
	if err != nil {
		return t, controlplane.Config{}, fmt.Errorf("read topology file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, &t); err != nil {
		return t, controlplane.Config{}, fmt.Errorf("parse topology file %q: %w", path, err)
	}
	return t, t.controlplaneConfig(), nil
}
