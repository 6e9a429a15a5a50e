// Command mcmot-capture runs one Capture Stage worker for a single
// camera (spec §4.D).
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
	"github.com/grafana/mcmot/internal/capture"
	mcmotconfig "github.com/grafana/mcmot/internal/config"
	mcmotlog "github.com/grafana/mcmot/internal/log"
)

type rootConfig struct {
	Capture    capture.Config `yaml:"capture"`
	Broker     broker.Config  `yaml:"broker"`
	MetricsAddr string        `yaml:"metrics-addr"`
	LogLevel    string        `yaml:"log-level"`
}

func (c *rootConfig) RegisterFlags(prefix string, f *flag.FlagSet) {
	c.Capture.RegisterFlags(prefix, f)
	c.Broker.RegisterFlags(prefix, f)
	f.StringVar(&c.MetricsAddr, prefix+"metrics-addr", ":9090", "address to serve /metrics on")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	printVersion := flag.Bool("version", false, "Print this binary's version information")

	var cfg rootConfig
	if err := mcmotconfig.Load(&cfg, os.Args[1:], mcmotconfig.DefaultOptions); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print("mcmot-capture"))
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

	src := capture.NewFixtureSource(cfg.Capture.Camera.Width, cfg.Capture.Camera.Height)
	stage := capture.New(cfg.Capture, src, br, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level.Info(mcmotlog.Logger).Log("msg", "starting mcmot-capture", "camera_id", cfg.Capture.Camera.CameraID, "version", version.Info())
	if err := services.StartAndAwaitRunning(ctx, stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "failed to start capture stage", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	level.Info(mcmotlog.Logger).Log("msg", "stopping mcmot-capture")
	if err := services.StopAndAwaitTerminated(context.Background(), stage); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "error stopping capture stage", "err", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		level.Error(mcmotlog.Logger).Log("msg", "metrics server stopped", "err", err)
	}
}
