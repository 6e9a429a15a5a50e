// Package stagerun implements the Stage Runtime (spec §4.C): the generic
// consume -> sync -> callback -> produce -> commit loop every stage
// worker binary runs, wired together as a dskit services.Service the way
// the teacher wires its long-running components.
package stagerun

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/envelope"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/sync"
	"github.com/grafana/mcmot/internal/workerpool"
)

// Callback is a stage's domain logic: given one admitted envelope (or, in
// unify mode, a synchronized group keyed by camera_id), produce zero or
// one output envelope. Returning a nil envelope with a nil error means
// "processed, nothing to emit" (e.g. Analytics' terminal sink).
type Callback func(ctx context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error)

// Stage is one running stage worker: a services.Service composed of a
// Frame-Sync Engine, a bounded worker pool, and a broker subscription.
type Stage struct {
	services.Service

	cfg             Config
	broker          broker.Broker
	engine          *sync.Engine
	pool            *workerpool.Pool
	callback        Callback
	skipCallback    Callback
	evictedCallback Callback
	m               *metrics
}

// Option configures optional Stage behavior at construction time.
type Option func(*Stage)

// WithSkipCallback registers a hook invoked in place of the Stage
// Runtime's default "drop the message" behavior whenever the Sync
// Engine's admission check returns Skip. Detection uses this to reach
// its Kalman-predict-on-skip path (spec §4.E): without it, every Skip
// decision returns from handle before any stage callback runs, for every
// stage. A nil return from fn (both values nil) means "skip silently",
// the same as the default.
func WithSkipCallback(fn Callback) Option {
	return func(s *Stage) { s.skipCallback = fn }
}

// WithEvictedCallback registers a hook invoked instead of the normal
// callback when a Frame-Sync group is emitted early by a backlog/retention
// eviction (sync.Engine.OnEvict) rather than completing a normal Deposit
// (spec §7: such groups must be processed and marked incomplete). Unify
// uses this to stamp Metadata.Incomplete. Defaults to the normal callback
// when unset.
func WithEvictedCallback(fn Callback) Option {
	return func(s *Stage) { s.evictedCallback = fn }
}

// New constructs a Stage. br is the shared broker the stage consumes from
// and produces to; callback implements the stage's domain logic.
func New(cfg Config, br broker.Broker, callback Callback, reg prometheus.Registerer, opts ...Option) *Stage {
	engine := sync.NewEngine(cfg.Sync, sync.WithRegisterer(reg, cfg.Pipeline, cfg.Stage))
	s := &Stage{
		cfg:      cfg,
		broker:   br,
		engine:   engine,
		pool:     workerpool.New(&cfg.Pool, reg, cfg.Pipeline+"/"+cfg.Stage),
		callback: callback,
		m:        newMetrics(reg, cfg.Pipeline, cfg.Stage),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evictedCallback == nil {
		s.evictedCallback = s.callback
	}
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

func (s *Stage) starting(ctx context.Context) error {
	for _, topic := range s.cfg.InputTopics {
		if err := s.broker.CreateTopic(ctx, topic, 1, 1); err != nil {
			return fmt.Errorf("stagerun: ensure input topic %q: %w", topic, err)
		}
	}
	if s.cfg.OutputTopic != "" {
		if err := s.broker.CreateTopic(ctx, s.cfg.OutputTopic, 1, 1); err != nil {
			return fmt.Errorf("stagerun: ensure output topic %q: %w", s.cfg.OutputTopic, err)
		}
	}
	if s.cfg.DeadLetterTopic != "" {
		if err := s.broker.CreateTopic(ctx, s.cfg.DeadLetterTopic, 1, 1); err != nil {
			return fmt.Errorf("stagerun: ensure dead-letter topic %q: %w", s.cfg.DeadLetterTopic, err)
		}
	}
	return nil
}

func (s *Stage) running(ctx context.Context) error {
	level.Info(mcmotlog.Logger).Log("msg", "stage running", "pipeline", s.cfg.Pipeline, "stage", s.cfg.Stage, "topics", s.cfg.InputTopics)

	go func() {
		if err := s.engine.Run(ctx); err != nil {
			level.Error(mcmotlog.Logger).Log("msg", "sync engine stopped with error", "err", err)
		}
	}()
	s.engine.OnEvict = func(g sync.EvictedGroup) {
		if g.Discard {
			level.Info(mcmotlog.Logger).Log("msg", "sync group discarded", "key", g.Key, "reason", g.Reason)
			return
		}
		if _, err := s.emit(ctx, g.Frames, s.evictedCallback); err != nil {
			level.Error(mcmotlog.Logger).Log("msg", "failed to emit evicted partial group", "key", g.Key, "err", err)
		}
	}

	errCh := make(chan error, len(s.cfg.InputTopics))
	for _, topic := range s.cfg.InputTopics {
		topic := topic
		go func() {
			errCh <- s.broker.Consume(ctx, topic, s.cfg.GroupID, s.handle)
		}()
	}

	for range s.cfg.InputTopics {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return fmt.Errorf("stagerun: consume loop failed: %w", err)
		}
	}
	return nil
}

// Pool exposes the stage's bounded worker pool so a callback can
// parallelize per-frame sub-work (e.g. embedding extraction across
// several detections) without spawning unbounded goroutines.
func (s *Stage) Pool() *workerpool.Pool {
	return s.pool
}

func (s *Stage) stopping(failureCase error) error {
	level.Info(mcmotlog.Logger).Log("msg", "stage stopping", "pipeline", s.cfg.Pipeline, "stage", s.cfg.Stage, "err", failureCase)
	s.pool.Shutdown()
	return s.broker.Close(context.Background())
}

// handle is the broker.ConsumeFunc bound to one input topic. It decodes
// the envelope, applies intra-camera admission, and either invokes the
// callback directly (no inter-camera sync configured) or deposits into
// the Sync Engine's cross-camera buffer (unify mode).
func (s *Stage) handle(ctx context.Context, msg broker.Message) error {
	s.m.consumed.Inc()

	var env envelope.Envelope
	if err := env.UnmarshalJSON(msg.Value); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "dropping undecodable envelope", "topic", msg.Topic, "err", err)
		return nil // poison at the codec level: never redeliver, never block the partition
	}

	decision := s.engine.SkipOrWait(env.CameraID, env.FrameNumber, env.FrameTimestamp, env.FPSDeclared)
	switch decision.Kind {
	case sync.Skip:
		if s.skipCallback == nil {
			return nil
		}
		return s.processWithRetry(ctx, map[string]envelope.Envelope{env.CameraID: env}, s.skipCallback)
	case sync.Wait:
		select {
		case <-time.After(decision.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.cfg.Sync.Unify {
		frames, complete := s.engine.Deposit(env.CameraID, env)
		if !complete {
			return nil
		}
		return s.processWithRetry(ctx, frames, s.callback)
	}

	return s.processWithRetry(ctx, map[string]envelope.Envelope{env.CameraID: env}, s.callback)
}

func (s *Stage) processWithRetry(ctx context.Context, frames map[string]envelope.Envelope, cb Callback) error {
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.m.retried.Inc()
			select {
			case <-time.After(s.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, err = s.emit(ctx, frames, cb)
		if err == nil {
			return nil
		}
		s.m.callbackErr.Inc()
		level.Warn(mcmotlog.Logger).Log("msg", "stage callback failed", "attempt", attempt, "err", err)
	}

	return s.deadLetter(ctx, frames, err)
}

func (s *Stage) emit(ctx context.Context, frames map[string]envelope.Envelope, cb Callback) (*envelope.Envelope, error) {
	start := time.Now()
	out, err := cb(ctx, frames)
	s.m.callbackLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if out == nil || s.cfg.OutputTopic == "" {
		return out, nil
	}
	payload, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("stagerun: encode output envelope: %w", err)
	}
	if err := s.broker.Produce(ctx, s.cfg.OutputTopic, out.Key(), payload); err != nil {
		return nil, fmt.Errorf("stagerun: produce to %q: %w", s.cfg.OutputTopic, err)
	}
	s.m.produced.Inc()
	return out, nil
}

// deadLetter ships every envelope of a permanently-failing frame group to
// the dead-letter topic, or logs and drops it if none is configured
// (spec §7 poison-message handling).
func (s *Stage) deadLetter(ctx context.Context, frames map[string]envelope.Envelope, cause error) error {
	s.m.deadLettered.Inc()
	if s.cfg.DeadLetterTopic == "" {
		level.Error(mcmotlog.Logger).Log("msg", "dropping poison envelope: no dead-letter topic configured", "err", cause)
		return nil
	}
	for camID, env := range frames {
		payload, err := env.MarshalJSON()
		if err != nil {
			level.Error(mcmotlog.Logger).Log("msg", "failed to encode poison envelope for dead-letter", "camera_id", camID, "err", err)
			continue
		}
		if err := s.broker.Produce(ctx, s.cfg.DeadLetterTopic, env.Key(), payload); err != nil {
			level.Error(mcmotlog.Logger).Log("msg", "failed to produce to dead-letter topic", "camera_id", camID, "err", err)
			return err
		}
	}
	level.Warn(mcmotlog.Logger).Log("msg", "envelope dead-lettered after exhausting retries", "cause", cause, "cameras", len(frames))
	return nil
}
