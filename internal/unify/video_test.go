package unify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	written map[string][]byte
}

func newFakeBackend() *fakeBackend { return &fakeBackend{written: map[string][]byte{}} }

func (f *fakeBackend) Write(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[name] = data
	return nil
}

func TestMotionJPEGWriter_CloseFlushesBufferedFrames(t *testing.T) {
	backend := newFakeBackend()
	w := NewMotionJPEGWriter(backend, "combined.mp4")

	require.NoError(t, w.AppendFrame(context.Background(), []byte("frame-a")))
	require.NoError(t, w.AppendFrame(context.Background(), []byte("frame-b")))
	require.NoError(t, w.Close())

	backend.mu.Lock()
	data, ok := backend.written["combined.mp4"]
	backend.mu.Unlock()
	require.True(t, ok)
	assert.Contains(t, string(data), "frame-a")
	assert.Contains(t, string(data), "frame-b")
}

func TestMotionJPEGWriter_AppendAfterCloseErrors(t *testing.T) {
	w := NewMotionJPEGWriter(newFakeBackend(), "combined.mp4")
	require.NoError(t, w.Close())
	assert.Error(t, w.AppendFrame(context.Background(), []byte("late")))
}

func TestMotionJPEGWriter_CloseIsIdempotent(t *testing.T) {
	w := NewMotionJPEGWriter(newFakeBackend(), "combined.mp4")
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
