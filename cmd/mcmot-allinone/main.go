// Command mcmot-allinone runs every MCMOT stage in one process for local
// development: a single Target flag selects either one stage module or
// the composite "all" target, wired together by a dskit/modules
// dependency graph the way cmd/tempo composes its SingleBinary target.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"

	mcmotconfig "github.com/grafana/mcmot/internal/config"
	mcmotlog "github.com/grafana/mcmot/internal/log"
)

func main() {
	printVersion := flag.Bool("version", false, "Print this binary's version information")

	cfg := DefaultConfig()
	if err := mcmotconfig.Load(&cfg, os.Args[1:], mcmotconfig.DefaultOptions); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print("mcmot-allinone"))
		os.Exit(0)
	}
	mcmotlog.SetLevel(cfg.LogLevel)

	app := New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level.Info(mcmotlog.Logger).Log("msg", "starting mcmot-allinone", "target", cfg.Target, "version", version.Info())
	if err := app.Run(ctx); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "mcmot-allinone exited with error", "err", err)
		os.Exit(1)
	}
}
