// Package workerpool provides a bounded goroutine pool that each stage
// worker owns (stagerun.Stage.Pool) for parallelizing per-frame work
// without spawning unbounded goroutines per envelope (spec §5).
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// JobFunc is one unit of work submitted to a Pool.
type JobFunc func(ctx context.Context) error

type job struct {
	ctx  context.Context
	fn   JobFunc
	wg   *sync.WaitGroup
	err  *atomic.Error
	once *sync.Once
}

// Pool is a fixed-size worker pool fed by a bounded channel, grounded on
// the teacher's query-concurrency pool.
type Pool struct {
	cfg       *Config
	queued    *atomic.Int32
	workQueue chan *job
	m         *metrics

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Pool with cfg.MaxWorkers goroutines reading from a queue of
// depth cfg.QueueDepth. A nil cfg uses defaultConfig.
func New(cfg *Config, reg prometheus.Registerer, name string) *Pool {
	if cfg == nil {
		cfg = defaultConfig()
	}
	p := &Pool{
		cfg:       cfg,
		queued:    atomic.NewInt32(0),
		workQueue: make(chan *job, cfg.QueueDepth),
		m:         newMetrics(reg, name),
		done:      make(chan struct{}),
	}
	p.m.queueMax.Set(float64(cfg.QueueDepth))

	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}
	return p
}

// RunAll submits every fn in fns and blocks until all have completed,
// returning the first error encountered (if any). It fails fast with no
// submission at all if the queue has no room for the full batch, so a
// caller never ends up with a partially-submitted frame's work.
func (p *Pool) RunAll(ctx context.Context, fns []JobFunc) error {
	n := len(fns)
	if n == 0 {
		return nil
	}
	if int(p.queued.Load())+n > p.cfg.QueueDepth {
		return fmt.Errorf("workerpool: queue has no room for %d jobs", n)
	}

	wg := &sync.WaitGroup{}
	errBox := atomic.NewError(nil)
	errOnce := &sync.Once{}
	wg.Add(n)

	for _, fn := range fns {
		j := &job{ctx: ctx, fn: fn, wg: wg, err: errBox, once: errOnce}
		select {
		case p.workQueue <- j:
			p.queued.Inc()
			p.m.queueLength.Set(float64(p.queued.Load()))
		default:
			// Should not happen given the room check above under a single
			// submitter, but guards against concurrent over-submission.
			wg.Done()
			return fmt.Errorf("workerpool: queue full, job not submitted")
		}
	}
	wg.Wait()
	return errBox.Load()
}

// Run submits a single job and blocks until it completes.
func (p *Pool) Run(ctx context.Context, fn JobFunc) error {
	return p.RunAll(ctx, []JobFunc{fn})
}

func (p *Pool) worker() {
	for j := range p.workQueue {
		p.queued.Dec()
		p.m.queueLength.Set(float64(p.queued.Load()))

		err := j.fn(j.ctx)
		if err != nil {
			p.m.jobsFailed.Inc()
			j.once.Do(func() { j.err.Store(err) })
		} else {
			p.m.jobsDone.Inc()
		}
		j.wg.Done()
	}
}

// Shutdown closes the job queue; each worker exits after finishing the
// job it is running. Shutdown itself returns without waiting for them.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.workQueue)
		close(p.done)
	})
}
