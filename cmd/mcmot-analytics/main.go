// Command mcmot-analytics runs the Analytics Stage (spec §4.I), the
// pipeline's terminal sink: it consumes unified frame groups from the
// Unification Stage's output topic and batches/captions/reports them.
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

	"github.com/grafana/mcmot/internal/analytics"
	"github.com/grafana/mcmot/internal/broker"
	mcmotconfig "github.com/grafana/mcmot/internal/config"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/objstore"
	"github.com/grafana/mcmot/internal/stagerun"
)

type rootConfig struct {
	Stage       stagerun.Config  `yaml:"stage"`
	Analytics   analytics.Config `yaml:"analytics"`
	Broker      broker.Config    `yaml:"broker"`
	MetricsAddr string           `yaml:"metrics-addr"`
	LogLevel    string           `yaml:"log-level"`
}

func (c *rootConfig) RegisterFlags(prefix string, f *flag.FlagSet) {
	c.Stage.RegisterFlags(prefix, f)
	c.Analytics.RegisterFlags(prefix, f)
	c.Broker.RegisterFlags(prefix, f)
	f.StringVar(&c.MetricsAddr, prefix+"metrics-addr", ":9090", "address to serve /metrics on")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	printVersion := flag.Bool("version", false, "Print this binary's version information")

	cfg := rootConfig{Analytics: analytics.DefaultConfig()}
	cfg.Stage.Stage = "analytics"
	if err := mcmotconfig.Load(&cfg, os.Args[1:], mcmotconfig.DefaultOptions); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print("mcmot-analytics"))
		os.Exit(0)
	}
	mcmotlog.SetLevel(cfg.LogLevel)

	br, err := broker.New(cfg.Broker)
	if err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to construct broker", "err", err)
		os.Exit(1)
	}

	backend, err := objstore.New(cfg.Analytics.Output)
	if err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to construct output backend", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	go serveMetrics(cfg.MetricsAddr, reg)

	analyticsStage := analytics.New(cfg.Analytics, analytics.NoopLLM{}, backend)
	stage := stagerun.New(cfg.Stage, br, analyticsStage.Callback, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level.Info(mcmotlog.Logger).Log("msg", "starting mcmot-analytics", "version", version.Info())
	if err := services.StartAndAwaitRunning(ctx, stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to start analytics stage", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := analyticsStage.Run(ctx); err != nil && ctx.Err() == nil {
			level.Error(mcmotlog.Logger).Log("msg", "analytics batching loop stopped with error", "err", err)
		}
	}()

	<-ctx.Done()
	level.Info(mcmotlog.Logger).Log("msg", "stopping mcmot-analytics")
	if err := services.StopAndAwaitTerminated(context.Background(), stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error stopping analytics stage", "err", err)
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
