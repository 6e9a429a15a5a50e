package sync

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/mcmot/internal/envelope"
	mcmotlog "github.com/grafana/mcmot/internal/log"
)

// EvictReason explains why a group or head entry left the buffer without
// completing.
type EvictReason string

const (
	EvictBacklog   EvictReason = "backlog"
	EvictRetention EvictReason = "retention"
)

// EvictedGroup is reported to an Engine's OnEvict callback (outside the
// engine's lock, per spec §5).
type EvictedGroup struct {
	Key     SyncKey
	Frames  map[string]envelope.Envelope
	Reason  EvictReason
	Discard bool // true: force-discarded with no partial emission
}

// Engine is the Frame-Sync Engine (spec §4.B): it answers intra-camera
// skip_or_wait questions and performs inter-camera group
// collection/synchronization, both guarded by a single mutex with
// callbacks invoked outside the lock (spec §5).
type Engine struct {
	cfg   Config
	clock func() time.Time

	mu sync.Mutex

	// intra-camera state
	watermarks map[string]*Watermark
	seqBuffers map[string]*seqHeap
	headBuf    map[string]envelope.Envelope // seek_to_end: most recent arrival only

	// inter-camera (unify) state
	knownCameras       map[string]struct{}
	groups             map[SyncKey]*group
	groupOrder         groupHeap
	globalWatermark    SyncKey
	globalWatermarkSet bool
	firstGroupFormed   bool

	m *metrics

	// OnEvict is invoked (outside the lock) whenever the backlog or
	// retention sweep removes a group/head without normal completion.
	OnEvict func(EvictedGroup)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's wall-clock source, used by tests that
// need SkipOrWait to be a pure function of explicit inputs (spec §8 Skip
// idempotence).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRegisterer attaches the engine's metrics to reg under the given
// pipeline/stage labels.
func WithRegisterer(reg prometheus.Registerer, pipeline, stage string) Option {
	return func(e *Engine) { e.m = newMetrics(reg, pipeline, stage) }
}

// NewEngine constructs an Engine for cfg.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg,
		clock:        time.Now,
		watermarks:   map[string]*Watermark{},
		seqBuffers:   map[string]*seqHeap{},
		headBuf:      map[string]envelope.Envelope{},
		knownCameras: map[string]struct{}{},
		groups:       map[SyncKey]*group{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.m == nil {
		e.m = newMetrics(prometheus.DefaultRegisterer, "", "")
	}
	return e
}

// SkipOrWait is the intra-camera admission check (spec §4.B). It is a
// pure function of the camera's current watermark, the incoming key, and
// the wall-clock instant the caller supplies via the engine's clock
// (overridable with WithClock for deterministic tests — spec §8 Skip
// idempotence).
func (e *Engine) SkipOrWait(cameraID string, frameNumber int64, frameTimestamp float64, fps int) Decision {
	if e.cfg.Type == TypeNone {
		e.recordDecision(Accept)
		return Decision{Kind: Accept}
	}

	now := e.clock()
	tol := e.cfg.tol()

	e.mu.Lock()
	defer e.mu.Unlock()

	wm, ok := e.watermarks[cameraID]
	incomingKey := keyFor(e.cfg, frameNumber, frameTimestamp)

	if !ok {
		// First frame from this camera: accept unconditionally and seed
		// the watermark as if it arrived exactly on time.
		e.watermarks[cameraID] = &Watermark{Key: incomingKey, Timestamp: frameTimestamp, ArrivedAt: now}
		e.recordDecisionLocked(Accept)
		return Decision{Kind: Accept}
	}

	if incomingKey <= wm.Key {
		e.recordDecisionLocked(Skip)
		return Decision{Kind: Skip}
	}

	delta := incomingKey - wm.Key
	expected := wm.ArrivedAt.Add(expectedDelay(e.cfg, delta, fps))

	if now.Sub(expected) > e.cfg.LatencyThreshold {
		e.recordDecisionLocked(Skip)
		return Decision{Kind: Skip}
	}

	tolDur := expectedDelay(e.cfg, tol, fps)
	if now.Before(expected.Add(-tolDur)) {
		if e.cfg.IgnoreInitialDelay && !e.firstGroupFormed {
			// No cross-camera group has formed yet: admit immediately
			// instead of making the first frames wait on a watermark that
			// hasn't been established by a real group formation (spec
			// §4.B ignore_initial_delay).
			wm.Key = incomingKey
			wm.Timestamp = frameTimestamp
			wm.ArrivedAt = now
			e.recordDecisionLocked(Accept)
			return Decision{Kind: Accept}
		}
		e.recordDecisionLocked(Wait)
		return Decision{Kind: Wait, Wait: expected.Sub(now)}
	}

	wm.Key = incomingKey
	wm.Timestamp = frameTimestamp
	wm.ArrivedAt = now
	e.recordDecisionLocked(Accept)
	return Decision{Kind: Accept}
}

func (e *Engine) recordDecision(k Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordDecisionLocked(k)
}

func (e *Engine) recordDecisionLocked(k Kind) {
	switch k {
	case Accept:
		e.m.accepted.Inc()
	case Skip:
		e.m.skipped.Inc()
	case Wait:
		e.m.waited.Inc()
	}
}

// Deposit is the inter-camera collect/synchronize operation for unify
// mode (spec §4.B). It returns the completed group (and removes it from
// the buffer) the instant every known camera has deposited into the
// bucket; otherwise it returns ok=false and the envelope stays buffered.
func (e *Engine) Deposit(cameraID string, env envelope.Envelope) (frames map[string]envelope.Envelope, complete bool) {
	key := BucketKey(e.cfg, env.FrameNumber, env.FrameTimestamp)

	if e.cfg.EnableSequencing {
		env, key = e.sequence(cameraID, key, env)
		if key < 0 {
			return nil, false
		}
	}

	if e.cfg.SeekToEnd {
		e.mu.Lock()
		e.headBuf[cameraID] = env
		e.knownCameras[cameraID] = struct{}{}
		e.mu.Unlock()
		return nil, false
	}

	e.mu.Lock()

	e.knownCameras[cameraID] = struct{}{}

	if key < e.globalWatermark && e.globalWatermarkSet {
		e.mu.Unlock()
		level.Debug(mcmotlog.Logger).Log("msg", "dropping stale deposit below global watermark", "camera_id", cameraID, "key", key)
		return nil, false
	}

	g, ok := e.groups[key]
	if !ok {
		g = &group{key: key, deposited: map[string]envelope.Envelope{}, firstSeen: e.clock()}
		e.groups[key] = g
		heap.Push(&e.groupOrder, g)
	}
	g.deposited[cameraID] = env

	complete = len(g.deposited) >= len(e.knownCameras)
	if complete {
		frames = g.deposited
		delete(e.groups, key)
		e.removeFromOrder(key)
		e.globalWatermark = key
		e.globalWatermarkSet = true
		e.firstGroupFormed = true
		e.discardBelowWatermarkLocked()
	}
	size := len(e.groups)
	e.mu.Unlock()

	if e.m != nil {
		e.m.backlogSize.Set(float64(size))
	}

	return frames, complete
}

// sequence reorders a per-camera arrival into monotonic SyncKey order
// using a small per-camera priority buffer (enable_sequencing, spec
// §4.B), returning the next in-order (envelope, key) to deposit, or a
// no-op signal when the arrival was buffered rather than released.
func (e *Engine) sequence(cameraID string, key SyncKey, env envelope.Envelope) (envelope.Envelope, SyncKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.seqBuffers[cameraID]
	if !ok {
		h = &seqHeap{}
		heap.Init(h)
		e.seqBuffers[cameraID] = h
	}
	heap.Push(h, seqItem{key: key, env: env})

	wm := e.watermarks[cameraID]
	expectedNext := SyncKey(0)
	if wm != nil {
		expectedNext = SyncKey(wm.Key) + 1
	}

	if (*h)[0].key == expectedNext || wm == nil {
		item := heap.Pop(h).(seqItem)
		e.watermarks[cameraID] = &Watermark{Key: float64(item.key), Timestamp: item.env.FrameTimestamp, ArrivedAt: e.clock()}
		return item.env, item.key
	}
	return envelope.Envelope{}, -1
}

// removeFromOrder removes the group with the given key from groupOrder.
// Called with e.mu held.
func (e *Engine) removeFromOrder(key SyncKey) {
	for i, g := range e.groupOrder {
		if g.key == key {
			heap.Remove(&e.groupOrder, i)
			return
		}
	}
}

// discardBelowWatermarkLocked drops any buffered group older than the
// just-advanced global watermark (spec §4.B: "all buffer entries with
// key < watermark are discarded"). Called with e.mu held.
func (e *Engine) discardBelowWatermarkLocked() {
	for e.groupOrder.Len() > 0 && e.groupOrder[0].key < e.globalWatermark {
		g := heap.Pop(&e.groupOrder).(*group)
		delete(e.groups, g.key)
	}
}

// Run drives the backlog-threshold and retention-time sweeps until ctx is
// cancelled, invoking OnEvict outside the lock for every eviction. Stage
// Runtime starts this as part of a stage's "running" phase.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.Type == TypeNone || (e.cfg.BacklogCheckInterval <= 0 && e.cfg.RetentionTime <= 0) {
		<-ctx.Done()
		return nil
	}

	interval := e.cfg.BacklogCheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweepBacklog()
			e.sweepRetention()
		}
	}
}

func (e *Engine) sweepBacklog() {
	for {
		e.mu.Lock()
		if e.cfg.BacklogThreshold <= 0 || len(e.groups) <= e.cfg.BacklogThreshold {
			e.mu.Unlock()
			return
		}
		g := heap.Pop(&e.groupOrder).(*group)
		delete(e.groups, g.key)
		discard := e.cfg.Unify
		frames := g.deposited
		e.mu.Unlock()

		if e.m != nil {
			e.m.evictedBacklog.Inc()
		}
		level.Info(mcmotlog.Logger).Log("msg", "evicting oldest sync group: backlog threshold exceeded", "key", g.key, "discard", discard)
		if e.OnEvict != nil {
			e.OnEvict(EvictedGroup{Key: g.key, Frames: frames, Reason: EvictBacklog, Discard: discard})
		}
	}
}

func (e *Engine) sweepRetention() {
	if e.cfg.RetentionTime <= 0 {
		return
	}
	now := e.clock()
	for {
		e.mu.Lock()
		if e.groupOrder.Len() == 0 {
			e.mu.Unlock()
			return
		}
		oldest := e.groupOrder[0]
		if now.Sub(oldest.firstSeen) <= e.cfg.RetentionTime {
			e.mu.Unlock()
			return
		}
		g := heap.Pop(&e.groupOrder).(*group)
		delete(e.groups, g.key)
		if g.key > e.globalWatermark || !e.globalWatermarkSet {
			e.globalWatermark = g.key
			e.globalWatermarkSet = true
		}
		frames := g.deposited
		e.mu.Unlock()

		if e.m != nil {
			e.m.evictedRetention.Inc()
		}
		level.Info(mcmotlog.Logger).Log("msg", "evicting sync group: retention_time elapsed, emitting partial group", "key", g.key, "cameras", len(frames))
		if e.OnEvict != nil {
			e.OnEvict(EvictedGroup{Key: g.key, Frames: frames, Reason: EvictRetention, Discard: false})
		}
	}
}

// BacklogSize returns the current number of buffered groups, for tests
// and health checks.
func (e *Engine) BacklogSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.groups)
}

// Quiesce blocks until either the buffer is empty or ctx is done, polling
// at interval. Used by tests asserting the Retention Bound invariant
// (§8): after T > retention_time of quiescence, the buffer is empty.
func (e *Engine) Quiesce(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if e.BacklogSize() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sync: buffer not empty after quiescence wait: %w", ctx.Err())
		case <-t.C:
		}
	}
}
