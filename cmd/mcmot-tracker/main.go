// Command mcmot-tracker runs the Tracker Stage (spec §4.G): two
// consumer loops — one primary, fed by the detection topic, one
// secondary, fed directly by the capture topic for cameras whose
// detections are running behind — sharing one trackerpkg.Stage so a
// camera's track set is updated consistently regardless of which loop
// observes it first.
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
	"github.com/grafana/mcmot/internal/stagerun"
	"github.com/grafana/mcmot/internal/trackerpkg"
)

type rootConfig struct {
	Tracker   trackerpkg.Config `yaml:"tracker"`
	Primary   stagerun.Config   `yaml:"primary"`   // consumes the detection topic
	Secondary stagerun.Config   `yaml:"secondary"` // consumes the capture topic directly
	Broker    broker.Config     `yaml:"broker"`

	MetricsAddr string `yaml:"metrics-addr"`
	LogLevel    string `yaml:"log-level"`
}

func (c *rootConfig) RegisterFlags(prefix string, f *flag.FlagSet) {
	c.Tracker.RegisterFlags(prefix, f)
	c.Primary.RegisterFlags(prefix+"primary.", f)
	c.Secondary.RegisterFlags(prefix+"secondary.", f)
	c.Broker.RegisterFlags(prefix, f)
	f.StringVar(&c.MetricsAddr, prefix+"metrics-addr", ":9090", "address to serve /metrics on")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	printVersion := flag.Bool("version", false, "Print this binary's version information")

	var cfg rootConfig
	cfg.Primary.Stage = "tracker-primary"
	cfg.Secondary.Stage = "tracker-secondary"
	if err := mcmotconfig.Load(&cfg, os.Args[1:], mcmotconfig.DefaultOptions); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print("mcmot-tracker"))
		os.Exit(0)
	}
	mcmotlog.SetLevel(cfg.LogLevel)

	br, err := broker.New(cfg.Broker)
	if err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to construct broker", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	go serveMetrics(cfg.MetricsAddr, reg)

	shared := trackerpkg.New(cfg.Tracker)
	primary := stagerun.New(cfg.Primary, br, shared.Callback, reg)
	secondary := stagerun.New(cfg.Secondary, br, shared.CallbackCapture, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level.Info(mcmotlog.Logger).Log("msg", "starting mcmot-tracker", "version", version.Info())
	if err := services.StartAndAwaitRunning(ctx, primary); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to start primary tracker loop", "err", err)
		os.Exit(1)
	}
	if err := services.StartAndAwaitRunning(ctx, secondary); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to start secondary tracker loop", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	level.Info(mcmotlog.Logger).Log("msg", "stopping mcmot-tracker")
	stopCtx := context.Background()
	if err := services.StopAndAwaitTerminated(stopCtx, primary); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error stopping primary tracker loop", "err", err)
	}
	if err := services.StopAndAwaitTerminated(stopCtx, secondary); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error stopping secondary tracker loop", "err", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		level.Error(mcmotlog.Logger).Log("msg", "metrics server stopped", "err", err)
	}
}
