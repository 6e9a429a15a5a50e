package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

// fakeClock gives SkipOrWait deterministic wall-clock control so decisions
// depend only on declared inputs, not real elapsed time (spec §8 Skip
// idempotence: "identical inputs always produce identical decisions").
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time  { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(cfg Config, clk *fakeClock) *Engine {
	return NewEngine(cfg, WithClock(clk.now))
}

func TestSkipOrWait_FirstFrameAlwaysAccepted(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 2 * time.Second}
	e := newTestEngine(cfg, clk)

	d := e.SkipOrWait("cam1", 0, 0, 30)
	assert.Equal(t, Accept, d.Kind)
}

func TestSkipOrWait_DuplicateOrOlderIsSkipped(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 2 * time.Second}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 10, 0, 30).Kind)

	assert.Equal(t, Skip, e.SkipOrWait("cam1", 10, 0, 30).Kind, "exact duplicate frame number must be skipped")
	assert.Equal(t, Skip, e.SkipOrWait("cam1", 5, 0, 30).Kind, "older frame number must be skipped")
}

func TestSkipOrWait_OnTimeIsAccepted(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 2 * time.Second}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0, 30).Kind)

	clk.advance(time.Second / 30)
	assert.Equal(t, Accept, e.SkipOrWait("cam1", 1, 0, 30).Kind, "arriving right on the expected frame interval should accept")
}

func TestSkipOrWait_EarlyArrivalWaits(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 2 * time.Second}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0, 30).Kind)

	// Frame 5 is expected at t=5/30s; asking at t=0 is far too early.
	d := e.SkipOrWait("cam1", 5, 0, 30)
	assert.Equal(t, Wait, d.Kind)
	assert.Greater(t, d.Wait, time.Duration(0))
}

func TestSkipOrWait_IgnoreInitialDelayBypassesWaitBeforeFirstGroup(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 2 * time.Second, IgnoreInitialDelay: true}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0, 30).Kind)

	// Frame 5 would normally Wait (see TestSkipOrWait_EarlyArrivalWaits),
	// but no cross-camera group has formed yet, so ignore_initial_delay
	// admits it immediately.
	d := e.SkipOrWait("cam1", 5, 0, 30)
	assert.Equal(t, Accept, d.Kind)

	e.firstGroupFormed = true
	d = e.SkipOrWait("cam1", 10, 0, 30)
	assert.Equal(t, Wait, d.Kind, "once a group has formed, ignore_initial_delay no longer applies")
}

func TestSkipOrWait_TooLateIsSkipped(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, FPS: 30, LatencyThreshold: 100 * time.Millisecond}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0, 30).Kind)

	clk.advance(5 * time.Second)
	assert.Equal(t, Skip, e.SkipOrWait("cam1", 1, 0, 30).Kind, "arriving far past latency_threshold must be skipped, not waited on")
}

func TestSkipOrWait_TimestampMode(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeTimestamp, FPS: 10, LatencyThreshold: time.Second}
	e := newTestEngine(cfg, clk)

	require.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0.0, 10).Kind)
	clk.advance(100 * time.Millisecond)
	assert.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0.1, 10).Kind)
	assert.Equal(t, Skip, e.SkipOrWait("cam1", 0, 0.05, 10).Kind, "timestamp at or before the watermark must be skipped")
}

func TestSkipOrWait_TypeNoneAlwaysAccepts(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	e := newTestEngine(Config{Type: TypeNone}, clk)

	for i := int64(0); i < 5; i++ {
		assert.Equal(t, Accept, e.SkipOrWait("cam1", i, 0, 30).Kind)
	}
	// Out-of-order arrivals are still accepted: sync is fully disabled.
	assert.Equal(t, Accept, e.SkipOrWait("cam1", 0, 0, 30).Kind)
}

func TestDeposit_TwoCameraUnifyGroup(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, Unify: true, BacklogThreshold: 50, RetentionTime: 10 * time.Second}
	e := newTestEngine(cfg, clk)

	env1 := envelope.Envelope{CameraID: "cam1", FrameNumber: 7}
	_, complete := e.Deposit("cam1", env1)
	assert.False(t, complete, "group is incomplete until every known camera has deposited")

	env2 := envelope.Envelope{CameraID: "cam2", FrameNumber: 7}
	frames, complete := e.Deposit("cam2", env2)
	require.True(t, complete)
	assert.Len(t, frames, 2)
	assert.Contains(t, frames, "cam1")
	assert.Contains(t, frames, "cam2")
}

func TestDeposit_StaleBelowWatermarkDropped(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, Unify: true, BacklogThreshold: 50, RetentionTime: 10 * time.Second}
	e := newTestEngine(cfg, clk)

	_, _ = e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: 5})
	_, complete := e.Deposit("cam2", envelope.Envelope{CameraID: "cam2", FrameNumber: 5})
	require.True(t, complete)

	// A late arrival for the already-completed (and now sub-watermark) key
	// must not reopen a group.
	_, complete = e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: 5})
	assert.False(t, complete)
	assert.Equal(t, 0, e.BacklogSize())
}

func TestEngine_RetentionSweepEmitsPartialGroup(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{
		Type:                 TypeNumber,
		Unify:                true,
		BacklogThreshold:     50,
		BacklogCheckInterval: 10 * time.Millisecond,
		RetentionTime:        20 * time.Millisecond,
	}
	e := newTestEngine(cfg, clk)

	evicted := make(chan EvictedGroup, 1)
	e.OnEvict = func(g EvictedGroup) { evicted <- g }

	_, complete := e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: 1})
	require.False(t, complete)
	// cam2 never arrives: the group must eventually be emitted as partial.
	clk.advance(cfg.RetentionTime + time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	select {
	case g := <-evicted:
		assert.Equal(t, EvictRetention, g.Reason)
		assert.False(t, g.Discard, "retention eviction always emits, it never silently discards")
		assert.Contains(t, g.Frames, "cam1")
	case <-time.After(2 * time.Second):
		t.Fatal("retention sweep did not evict the stale group in time")
	}
}

func TestEngine_BacklogThresholdForcesDiscardWhenUnify(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{
		Type:                 TypeNumber,
		Unify:                true,
		BacklogThreshold:     3,
		BacklogCheckInterval: 5 * time.Millisecond,
		RetentionTime:        time.Hour,
	}
	e := newTestEngine(cfg, clk)

	discards := make(chan EvictedGroup, 16)
	e.OnEvict = func(g EvictedGroup) { discards <- g }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	// cam2 never deposits, so every key stays an incomplete, buffered group;
	// pushing past backlog_threshold must force-discard the oldest ones.
	for i := int64(0); i < 10; i++ {
		e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: i})
	}

	require.Eventually(t, func() bool {
		return e.BacklogSize() <= cfg.BacklogThreshold
	}, 2*time.Second, 10*time.Millisecond, "buffer must never exceed backlog_threshold")

	select {
	case g := <-discards:
		assert.Equal(t, EvictBacklog, g.Reason)
		assert.True(t, g.Discard, "unify=true must force-discard backlog evictions with no partial emission")
	case <-time.After(time.Second):
		t.Fatal("expected at least one backlog eviction")
	}
}

func TestEngine_RetentionBoundInvariant(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{
		Type:                 TypeNumber,
		Unify:                true,
		BacklogThreshold:     50,
		BacklogCheckInterval: 5 * time.Millisecond,
		RetentionTime:        15 * time.Millisecond,
	}
	e := newTestEngine(cfg, clk)

	for i := int64(0); i < 5; i++ {
		e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: i})
	}
	require.Greater(t, e.BacklogSize(), 0)
	clk.advance(cfg.RetentionTime + time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, e.Quiesce(ctx2, 10*time.Millisecond), "buffer must empty out within bounded time of retention_time")
}

func TestEngine_SeekToEndKeepsOnlyMostRecent(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := Config{Type: TypeNumber, SeekToEnd: true}
	e := newTestEngine(cfg, clk)

	for i := int64(0); i < 3; i++ {
		_, complete := e.Deposit("cam1", envelope.Envelope{CameraID: "cam1", FrameNumber: i})
		assert.False(t, complete, "seek_to_end never completes a group through Deposit")
	}

	e.mu.Lock()
	head, ok := e.headBuf["cam1"]
	e.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, int64(2), head.FrameNumber, "only the most recently deposited frame is retained")
}
