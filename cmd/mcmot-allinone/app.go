package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcmotlog "github.com/grafana/mcmot/internal/log"
)

// Run starts every module InitModuleServices resolves for cfg.Target and
// blocks until ctx is cancelled, mirroring the teacher's App.Run
// (cmd/tempo/app/app.go) minus the HTTP/gRPC server surface this binary
// doesn't need.
func (a *App) Run(ctx context.Context) error {
	if err := a.setupModuleManager(); err != nil {
		return fmt.Errorf("failed to set up module manager: %w", err)
	}

	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to init module services: %w", err)
	}
	a.serviceMap = serviceMap

	servs := make([]services.Service, 0, len(serviceMap))
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return fmt.Errorf("failed to build service manager: %w", err)
	}

	healthy := func() { level.Info(mcmotlog.Logger).Log("msg", "mcmot-allinone started", "target", a.cfg.Target) }
	stopped := func() { level.Info(mcmotlog.Logger).Log("msg", "mcmot-allinone stopped") }
	serviceFailed := func(s services.Service) {
		sm.StopAsync()
		for m, svc := range serviceMap {
			if svc == s {
				level.Error(mcmotlog.Logger).Log("msg", "module failed", "module", m, "err", s.FailureCase())
				return
			}
		}
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(a.cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			level.Error(mcmotlog.Logger).Log("msg", "metrics server stopped", "err", err)
		}
	}()

	// Stop the manager once ctx is cancelled (signal received), the same
	// way the teacher's shutdown handler calls sm.StopAsync().
	go func() {
		<-ctx.Done()
		sm.StopAsync()
	}()

	if err := sm.StartAsync(context.Background()); err != nil {
		return fmt.Errorf("failed to start service manager: %w", err)
	}

	return sm.AwaitStopped(context.Background())
}
