// Command mcmot-unify runs the single Unification Stage worker (spec
// §4.H). Control Plane caps this stage's replication at one process,
// since the Sync Engine's unify-mode cross-camera buffer is not
// shardable.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	"github.com/grafana/mcmot/internal/broker"
	mcmotconfig "github.com/grafana/mcmot/internal/config"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/objstore"
	"github.com/grafana/mcmot/internal/stagerun"
	"github.com/grafana/mcmot/internal/unify"
)

type rootConfig struct {
	Stage       stagerun.Config `yaml:"stage"`
	Unify       unify.Config    `yaml:"unify"`
	Broker      broker.Config   `yaml:"broker"`
	MetricsAddr string          `yaml:"metrics-addr"`
	LogLevel    string          `yaml:"log-level"`
}

// RegisterFlags composes Stage's and Unify's flags. Unify.Sync is left
// unregistered here: Stage.Sync already owns the "sync.*" flag names
// this binary needs (unify.Config.RegisterFlags would otherwise
// register the same names twice), so Unify.Sync is set from Stage.Sync
// after parsing instead — see main.
func (c *rootConfig) RegisterFlags(prefix string, f *flag.FlagSet) {
	c.Stage.RegisterFlags(prefix, f)
	f.StringVar(&c.Unify.Pipeline, prefix+"unify.pipeline", "", "pipeline name, stamped on output paths")
	f.BoolVar(&c.Unify.VideoEnabled, prefix+"unify.video-enabled", true, "append each composed grid to a combined motion-JPEG video")
	c.Unify.Output.RegisterFlags(prefix, f)
	c.Broker.RegisterFlags(prefix, f)
	f.StringVar(&c.MetricsAddr, prefix+"metrics-addr", ":9090", "address to serve /metrics on")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	printVersion := flag.Bool("version", false, "Print this binary's version information")

	cfg := rootConfig{Unify: unify.DefaultConfig()}
	cfg.Stage.Stage = "unify"
	cfg.Stage.Sync = cfg.Unify.Sync
	if err := mcmotconfig.Load(&cfg, os.Args[1:], mcmotconfig.DefaultOptions); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print("mcmot-unify"))
		os.Exit(0)
	}
	// Stage.Sync is the only Sync config this binary exposes flags for;
	// Unify.Sync mirrors it so the Unification Stage and the Stage
	// Runtime wrapping it always agree on unify mode and sync type.
	cfg.Unify.Sync = cfg.Stage.Sync
	mcmotlog.SetLevel(cfg.LogLevel)

	br, err := broker.New(cfg.Broker)
	if err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to construct broker", "err", err)
		os.Exit(1)
	}

	backend, err := objstore.New(cfg.Unify.Output)
	if err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to construct output backend", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	go serveMetrics(cfg.MetricsAddr, reg)

	unifyStage := unify.New(cfg.Unify, backend)
	stage := stagerun.New(cfg.Stage, br, unifyStage.Callback, reg, stagerun.WithEvictedCallback(unifyStage.CallbackPartial))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level.Info(mcmotlog.Logger).Log("msg", "starting mcmot-unify", "version", version.Info())
	if err := services.StartAndAwaitRunning(ctx, stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to start unify stage", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	level.Info(mcmotlog.Logger).Log("msg", "stopping mcmot-unify")
	if err := services.StopAndAwaitTerminated(context.Background(), stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error stopping unify stage", "err", err)
	}
	if err := unifyStage.Close(); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error closing unify stage video writer", "err", err)
	}
	_ = backend.Close()
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		level.Error(mcmotlog.Logger).Log("msg", "metrics server stopped", "err", err)
	}
}
