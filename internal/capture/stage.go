package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/controlplane"
	"github.com/grafana/mcmot/internal/envelope"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/sync"
)

// Signal is a control message delivered on the pipeline's control topic.
type Signal string

const (
	SignalHold   Signal = "HOLD"
	SignalResume Signal = "RESUME"
	SignalStop   Signal = "STOP"
)

// Stage is the running Capture Stage: a services.Service that reads from
// Source, stamps envelopes, applies intra-camera admission, and produces
// to the broker.
type Stage struct {
	services.Service

	cfg    Config
	source Source
	br     broker.Broker
	engine *sync.Engine

	held    chan struct{}
	holding bool
	stopped chan struct{}

	lastFrameNumber int64

	accepted prometheus.Counter
	skipped  prometheus.Counter
	produced prometheus.Counter
}

// New constructs a capture Stage reading from src and producing to br.
func New(cfg Config, src Source, br broker.Broker, reg prometheus.Registerer) *Stage {
	labels := prometheus.Labels{"pipeline": cfg.Pipeline, "camera_id": cfg.Camera.CameraID}
	f := promauto.With(reg)
	s := &Stage{
		cfg:    cfg,
		source: src,
		br:     br,
		engine: sync.NewEngine(cfg.Sync, sync.WithRegisterer(reg, cfg.Pipeline, "capture")),
		held:    make(chan struct{}),
		stopped: make(chan struct{}),
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "capture", Name: "accepted_total", ConstLabels: labels,
			Help: "Frames accepted and produced.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "capture", Name: "skipped_total", ConstLabels: labels,
			Help: "Frames dropped by intra-camera admission control.",
		}),
		produced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "capture", Name: "produced_total", ConstLabels: labels,
			Help: "Envelopes produced to the output topic.",
		}),
	}
	close(s.held) // not holding at startup
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

func (s *Stage) starting(ctx context.Context) error {
	if s.cfg.OutputTopic != "" {
		if err := s.br.CreateTopic(ctx, s.cfg.OutputTopic, 1, 1); err != nil {
			return fmt.Errorf("capture: ensure output topic: %w", err)
		}
	}
	if s.cfg.ControlTopic != "" {
		if err := s.br.CreateTopic(ctx, s.cfg.ControlTopic, 1, 1); err != nil {
			return fmt.Errorf("capture: ensure control topic: %w", err)
		}
	}
	return nil
}

func (s *Stage) running(ctx context.Context) error {
	if s.cfg.ControlTopic != "" {
		go func() {
			if err := s.br.Consume(ctx, s.cfg.ControlTopic, "capture-"+s.cfg.Camera.CameraID, s.handleSignal); err != nil && ctx.Err() == nil {
				level.Error(mcmotlog.Logger).Log("msg", "control signal consume loop failed", "err", err)
			}
		}()
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case <-s.held:
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			backoff := ReconnectBackoff(attempt, s.cfg.ReconnectBase, s.cfg.ReconnectMax)
			level.Warn(mcmotlog.Logger).Log("msg", "capture source error, reconnecting", "attempt", attempt, "backoff", backoff, "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		attempt = 0

		if err := s.processFrame(ctx, frame); err != nil {
			return err
		}
	}
}

// processFrame stamps, admits, and produces one captured frame.
// Frame numbering is monotonic per camera_id and never resets on
// reconnect (spec §3).
func (s *Stage) processFrame(ctx context.Context, frame Frame) error {
	frameNumber := s.lastFrameNumber
	ts := float64(time.Now().UnixNano()) / 1e9

	decision := s.engine.SkipOrWait(s.cfg.Camera.CameraID, frameNumber, ts, s.cfg.Camera.FPS)
	switch decision.Kind {
	case sync.Skip:
		s.skipped.Inc()
		s.lastFrameNumber++
		return nil
	case sync.Wait:
		select {
		case <-time.After(decision.Wait):
		case <-ctx.Done():
			return nil
		}
	}

	env := envelope.Envelope{
		CameraID:       s.cfg.Camera.CameraID,
		FrameNumber:    frameNumber,
		FrameTimestamp: ts,
		FPSDeclared:    s.cfg.Camera.FPS,
		ImageBytes:     frame.Image,
		ImageShape:     frame.Shape,
	}
	s.lastFrameNumber++

	payload, err := env.MarshalJSON()
	if err != nil {
		return fmt.Errorf("capture: encode envelope: %w", err)
	}
	if err := s.br.Produce(ctx, s.cfg.OutputTopic, env.Key(), payload); err != nil {
		return fmt.Errorf("capture: produce: %w", err)
	}
	s.accepted.Inc()
	s.produced.Inc()
	return nil
}

func (s *Stage) handleSignal(ctx context.Context, msg broker.Message) error {
	var ctrl controlplane.ControlMessage
	if err := json.Unmarshal(msg.Value, &ctrl); err != nil {
		level.Warn(mcmotlog.Logger).Log("msg", "discarding malformed control message", "camera_id", s.cfg.Camera.CameraID, "err", err)
		return nil
	}
	switch Signal(ctrl.Signal) {
	case SignalHold:
		if !s.holding {
			s.holding = true
			s.held = make(chan struct{})
			level.Info(mcmotlog.Logger).Log("msg", "capture held", "camera_id", s.cfg.Camera.CameraID)
		}
	case SignalResume:
		if s.holding {
			s.holding = false
			close(s.held)
			level.Info(mcmotlog.Logger).Log("msg", "capture resumed", "camera_id", s.cfg.Camera.CameraID)
		}
	case SignalStop:
		level.Info(mcmotlog.Logger).Log("msg", "capture stop requested", "camera_id", s.cfg.Camera.CameraID)
		select {
		case <-s.stopped:
		default:
			close(s.stopped)
		}
	}
	return nil
}

func (s *Stage) stopping(_ error) error {
	return s.source.Close()
}
