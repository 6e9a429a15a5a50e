package main

import (
	"context"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/mcmot/internal/analytics"
	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/capture"
	"github.com/grafana/mcmot/internal/detection"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/objstore"
	"github.com/grafana/mcmot/internal/reid"
	"github.com/grafana/mcmot/internal/stagerun"
	"github.com/grafana/mcmot/internal/trackerpkg"
	"github.com/grafana/mcmot/internal/unify"
	"github.com/grafana/mcmot/internal/workerpool"
)

// defaultPool mirrors workerpool's own unexported defaultConfig, since
// a zero-valued workerpool.Config would start a pool with no workers.
func defaultPool() workerpool.Config {
	return workerpool.Config{MaxWorkers: 8, QueueDepth: 1024}
}

// The modules that make up a single-process MCMOT deployment, following
// the teacher's module-constant-plus-dependency-map convention
// (cmd/tempo/app/modules.go).
const (
	Broker       string = "broker"
	Capture      string = "capture"
	Detection    string = "detection"
	ReID         string = "reid"
	Tracker      string = "tracker"
	Unify        string = "unify"
	Analytics    string = "analytics"
	SingleBinary string = "all"
)

// App wires every stage module into one process, sharing one broker and
// one metrics registry the way the teacher's App shares one *server.Server.
type App struct {
	cfg Config
	reg *prometheus.Registry

	br broker.Broker

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service
}

// New constructs an App ready to have its module manager set up.
func New(cfg Config) *App {
	cfg.applyTopology()
	return &App{cfg: cfg, reg: prometheus.NewRegistry()}
}

func (a *App) initBroker() (services.Service, error) {
	br, err := broker.New(a.cfg.Broker)
	if err != nil {
		return nil, err
	}
	a.br = br
	// the broker has no lifecycle of its own worth modeling; an idle
	// service lets it close alongside the other modules on shutdown.
	return services.NewIdleService(nil, func(error) error { return a.br.Close(context.Background()) }), nil
}

func (a *App) initCapture() (services.Service, error) {
	src := capture.NewFixtureSource(a.cfg.Capture.Camera.Width, a.cfg.Capture.Camera.Height)
	return capture.New(a.cfg.Capture, src, a.br, a.reg), nil
}

func (a *App) initDetection() (services.Service, error) {
	stage := detection.New(a.cfg.Detection, detection.NoopDetector{})
	rcfg := stagerun.Config{
		Pipeline:    a.cfg.Pipeline,
		Stage:       Detection,
		InputTopics: []string{topicCapture},
		OutputTopic: topicDetection,
		GroupID:     Detection,
		Pool:        defaultPool(),
	}
	return stagerun.New(rcfg, a.br, stage.Callback, a.reg, stagerun.WithSkipCallback(stage.SkipCallback)), nil
}

func (a *App) initReID() (services.Service, error) {
	store, err := reid.NewStore(a.cfg.ReID, a.cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	stage := reid.New(reid.NoopEmbedder{}, reid.JPEGCropper{}, store)
	rcfg := stagerun.Config{
		Pipeline:    a.cfg.Pipeline,
		Stage:       ReID,
		InputTopics: []string{topicDetection},
		OutputTopic: topicReID,
		GroupID:     ReID,
		Pool:        defaultPool(),
	}
	return stagerun.New(rcfg, a.br, stage.Callback, a.reg), nil
}

// initTracker composites the Tracker Stage's two independent consumer
// loops (spec §4.G: primary on the reid-output topic, secondary directly
// on the capture topic) into one services.Service so the module graph
// still sees exactly one Tracker node, matching the rest of the modules.
func (a *App) initTracker() (services.Service, error) {
	shared := trackerpkg.New(a.cfg.Tracker)

	primary := stagerun.New(stagerun.Config{
		Pipeline: a.cfg.Pipeline, Stage: "tracker-primary",
		InputTopics: []string{topicReID}, OutputTopic: topicTracker,
		GroupID: "tracker-primary", Pool: defaultPool(),
	}, a.br, shared.Callback, a.reg)

	secondary := stagerun.New(stagerun.Config{
		Pipeline: a.cfg.Pipeline, Stage: "tracker-secondary",
		InputTopics: []string{topicCapture}, OutputTopic: topicTracker,
		GroupID: "tracker-secondary", Pool: defaultPool(),
	}, a.br, shared.CallbackCapture, a.reg)

	return services.NewBasicService(nil, func(ctx context.Context) error {
		if err := services.StartAndAwaitRunning(ctx, primary); err != nil {
			return err
		}
		if err := services.StartAndAwaitRunning(ctx, secondary); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}, func(error) error {
		stopCtx := context.Background()
		_ = services.StopAndAwaitTerminated(stopCtx, primary)
		_ = services.StopAndAwaitTerminated(stopCtx, secondary)
		return nil
	}), nil
}

func (a *App) initUnify() (services.Service, error) {
	backend, err := objstore.New(a.cfg.Unify.Output)
	if err != nil {
		return nil, err
	}
	stage := unify.New(a.cfg.Unify, backend)
	rcfg := stagerun.Config{
		Pipeline:    a.cfg.Pipeline,
		Stage:       Unify,
		InputTopics: []string{topicTracker},
		OutputTopic: topicUnified,
		GroupID:     Unify,
		Sync:        a.cfg.Unify.Sync,
		Pool:        defaultPool(),
	}
	inner := stagerun.New(rcfg, a.br, stage.Callback, a.reg, stagerun.WithEvictedCallback(stage.CallbackPartial))

	return services.NewBasicService(nil, func(ctx context.Context) error {
		if err := services.StartAndAwaitRunning(ctx, inner); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}, func(error) error {
		_ = services.StopAndAwaitTerminated(context.Background(), inner)
		_ = stage.Close()
		return backend.Close()
	}), nil
}

// initAnalytics wires the terminal sink: the Stage Runtime consumer loop
// plus the Analytics Stage's own LogWaitTime batching goroutine, composed
// into one services.Service so it appears as a single Analytics node.
func (a *App) initAnalytics() (services.Service, error) {
	backend, err := objstore.New(a.cfg.Analytics.Output)
	if err != nil {
		return nil, err
	}
	analyticsStage := analytics.New(a.cfg.Analytics, analytics.NoopLLM{}, backend)
	rcfg := stagerun.Config{
		Pipeline:    a.cfg.Pipeline,
		Stage:       Analytics,
		InputTopics: []string{topicUnified},
		GroupID:     Analytics,
		Pool:        defaultPool(),
	}
	inner := stagerun.New(rcfg, a.br, analyticsStage.Callback, a.reg)

	return services.NewBasicService(nil, func(ctx context.Context) error {
		if err := services.StartAndAwaitRunning(ctx, inner); err != nil {
			return err
		}
		go func() { _ = analyticsStage.Run(ctx) }()
		<-ctx.Done()
		return nil
	}, func(error) error {
		_ = services.StopAndAwaitTerminated(context.Background(), inner)
		return backend.Close()
	}), nil
}

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(mcmotlog.Logger)

	mm.RegisterModule(Broker, a.initBroker, modules.UserInvisibleModule)
	mm.RegisterModule(Capture, a.initCapture)
	mm.RegisterModule(Detection, a.initDetection)
	mm.RegisterModule(ReID, a.initReID)
	mm.RegisterModule(Tracker, a.initTracker)
	mm.RegisterModule(Unify, a.initUnify)
	mm.RegisterModule(Analytics, a.initAnalytics)
	mm.RegisterModule(SingleBinary, nil)

	deps := map[string][]string{
		Capture:      {Broker},
		Detection:    {Broker, Capture},
		ReID:         {Broker, Detection},
		Tracker:      {Broker, ReID, Capture},
		Unify:        {Broker, Tracker},
		Analytics:    {Broker, Unify},
		SingleBinary: {Analytics},
	}
	for mod, target := range deps {
		if err := mm.AddDependency(mod, target...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm
	return nil
}
