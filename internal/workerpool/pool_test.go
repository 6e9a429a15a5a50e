package workerpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool_RunAllCompletesAllJobs(t *testing.T) {
	p := New(&Config{MaxWorkers: 4, QueueDepth: 16}, nil, "test")
	defer p.Shutdown()

	var n atomic.Int32
	fns := make([]JobFunc, 10)
	for i := range fns {
		fns[i] = func(ctx context.Context) error {
			n.Inc()
			return nil
		}
	}

	require.NoError(t, p.RunAll(context.Background(), fns))
	assert.EqualValues(t, 10, n.Load())
}

func TestPool_RunAllReturnsFirstError(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueDepth: 16}, nil, "test")
	defer p.Shutdown()

	boom := errors.New("boom")
	fns := []JobFunc{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
	}

	err := p.RunAll(context.Background(), fns)
	assert.ErrorIs(t, err, boom)
}

func TestPool_RunAllRejectsOversizedBatch(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueDepth: 2}, nil, "test")
	defer p.Shutdown()

	fns := make([]JobFunc, 3)
	for i := range fns {
		fns[i] = func(ctx context.Context) error { return nil }
	}

	err := p.RunAll(context.Background(), fns)
	assert.Error(t, err)
}
