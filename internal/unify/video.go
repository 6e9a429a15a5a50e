package unify

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"
)

// VideoWriter appends motion-JPEG frames to a single logical video
// stream, closing the underlying container after InactivityTimeout of
// no appended frames (spec §4.H: "60s-inactivity-timeout lifetime
// exactly as specified").
type VideoWriter interface {
	// AppendFrame writes one composed-grid JPEG as the next video frame.
	AppendFrame(ctx context.Context, jpeg []byte) error
	// Close flushes and releases the underlying container.
	Close() error
}

// InactivityTimeout is the fixed lifetime the spec pins for an idle
// combined-video writer.
const InactivityTimeout = 60 * time.Second

// muxer is the narrow seam a real motion-JPEG-to-MP4 encoder would
// implement. No such codec library appears in the retrieved pack;
// mirrors the spec's own non-goal on model/codec specifics, so the
// default muxer concatenates raw JPEG frames rather than producing a
// real MP4 container.
type muxer interface {
	WriteFrame(jpeg []byte) error
	Close() ([]byte, error)
}

// concatMuxer is the default muxer: it frames each JPEG with a 4-byte
// big-endian length prefix so a downstream real encoder can be slotted
// in later without changing MotionJPEGWriter's public shape.
type concatMuxer struct {
	buf bytes.Buffer
}

func (m *concatMuxer) WriteFrame(jpeg []byte) error {
	var lenPrefix [4]byte
	n := len(jpeg)
	lenPrefix[0] = byte(n >> 24)
	lenPrefix[1] = byte(n >> 16)
	lenPrefix[2] = byte(n >> 8)
	lenPrefix[3] = byte(n)
	m.buf.Write(lenPrefix[:])
	m.buf.Write(jpeg)
	return nil
}

func (m *concatMuxer) Close() ([]byte, error) {
	return m.buf.Bytes(), nil
}

// outputBackend is the subset of objstore.ReadWriter a MotionJPEGWriter
// needs, kept narrow so tests can fake it without pulling in objstore.
type outputBackend interface {
	Write(ctx context.Context, name string, data []byte) error
}

// MotionJPEGWriter is the default VideoWriter: it buffers frames via a
// muxer and flushes the container to name under an output backend once
// idle for InactivityTimeout, or on an explicit Close.
type MotionJPEGWriter struct {
	backend outputBackend
	name    string
	timeout time.Duration

	mu     sync.Mutex
	mux    muxer
	timer  *time.Timer
	closed bool
}

// NewMotionJPEGWriter constructs a VideoWriter flushing to name under backend.
func NewMotionJPEGWriter(backend outputBackend, name string) *MotionJPEGWriter {
	return &MotionJPEGWriter{
		backend: backend,
		name:    name,
		timeout: InactivityTimeout,
		mux:     &concatMuxer{},
	}
}

// AppendFrame writes jpeg as the next frame and resets the inactivity timer.
func (w *MotionJPEGWriter) AppendFrame(ctx context.Context, jpeg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("unify: video writer %q is closed", w.name)
	}
	if err := w.mux.WriteFrame(jpeg); err != nil {
		return fmt.Errorf("unify: mux frame for %q: %w", w.name, err)
	}

	if w.timer == nil {
		w.timer = time.AfterFunc(w.timeout, func() { _ = w.Close() })
	} else {
		w.timer.Reset(w.timeout)
	}
	return nil
}

// Close flushes whatever has been buffered to the output backend. Safe
// to call more than once; only the first call does work.
func (w *MotionJPEGWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	data, err := w.mux.Close()
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unify: close mux for %q: %w", w.name, err)
	}
	return w.backend.Write(context.Background(), w.name, data)
}
