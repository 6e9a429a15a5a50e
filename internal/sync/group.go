package sync

import (
	"container/heap"
	"math"
	"time"

	"github.com/grafana/mcmot/internal/envelope"
)

// SyncKey is the integer bucket frames are aligned on: the frame number
// in number mode, or floor(timestamp/tol) in timestamp mode (Glossary).
type SyncKey int64

// BucketKey derives the SyncKey for one envelope under cfg.
func BucketKey(cfg Config, frameNumber int64, ts float64) SyncKey {
	if cfg.Type == TypeTimestamp {
		tol := cfg.tol()
		return SyncKey(int64(math.Floor(ts / tol)))
	}
	return SyncKey(frameNumber)
}

// group is one in-flight cross-camera alignment bucket.
type group struct {
	key       SyncKey
	deposited map[string]envelope.Envelope
	firstSeen time.Time
}

// groupHeap is a min-heap over group keys, used to find the oldest
// buffered group in O(log n) for backlog eviction and retention sweeps.
type groupHeap []*group

func (h groupHeap) Len() int            { return len(h) }
func (h groupHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h groupHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *groupHeap) Push(x interface{}) { *h = append(*h, x.(*group)) }
func (h *groupHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&groupHeap{})

// seqItem is a per-camera buffered arrival awaiting in-order deposit when
// enable_sequencing is on.
type seqItem struct {
	key SyncKey
	env envelope.Envelope
}

type seqHeap []seqItem

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x interface{}) { *h = append(*h, x.(seqItem)) }
func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
