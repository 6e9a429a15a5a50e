package trackerpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/envelope"
)

func TestIoU_IdenticalBoxesIsOne(t *testing.T) {
	b := envelope.BBox{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(b, b), 1e-9)
}

func TestIoU_DisjointBoxesIsZero(t *testing.T) {
	a := envelope.BBox{0, 0, 10, 10}
	b := envelope.BBox{100, 100, 10, 10}
	assert.Equal(t, 0.0, IoU(a, b))
}

func TestNMS_SuppressesOverlappingLowerScore(t *testing.T) {
	dets := []envelope.Detection{
		{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"},
		{BBox: envelope.BBox{1, 1, 10, 10}, Score: 0.4, ClassID: "person"},
		{BBox: envelope.BBox{50, 50, 10, 10}, Score: 0.6, ClassID: "person"},
	}
	kept := NMS(dets, 0.3)
	require.Len(t, kept, 2)
	assert.Contains(t, kept, 0)
	assert.Contains(t, kept, 2)
}

func TestTracker_ConfirmsAfterEnoughHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmAfterHits = 3
	tr := NewTracker(cfg)

	box := envelope.BBox{10, 10, 20, 20}
	var tracks []envelope.Track
	for i := 0; i < 3; i++ {
		tracks = tr.Step([]envelope.Detection{{BBox: box, Score: 0.9, ClassID: "person"}})
	}

	require.Len(t, tracks, 1)
	assert.True(t, tracks[0].Confirmed)
}

func TestTracker_DeletesTrackAfterMaxMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMisses = 2
	tr := NewTracker(cfg)

	tr.Step([]envelope.Detection{{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"}})
	require.Equal(t, 1, tr.Len())

	tr.Step(nil)
	tr.Step(nil)
	tr.Step(nil)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_PredictOnlyDoesNotResetMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmAfterHits = 1
	cfg.MaxMisses = 1
	tr := NewTracker(cfg)

	tr.Step([]envelope.Detection{{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"}})
	require.Equal(t, 1, tr.Len())

	tracks := tr.PredictOnly()
	require.Len(t, tracks, 1, "predict-only must not delete or miss the confirmed track")
	assert.True(t, tracks[0].Confirmed)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_OnlyConfirmedTracksFiltersTentative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmAfterHits = 5
	cfg.OnlyConfirmedTracks = true
	tr := NewTracker(cfg)

	tracks := tr.Step([]envelope.Detection{{BBox: envelope.BBox{0, 0, 10, 10}, Score: 0.9, ClassID: "person"}})
	assert.Empty(t, tracks, "a tentative track must be dropped from the output when only_confirmed_tracks is set")
	assert.Equal(t, 1, tr.Len(), "the tentative track must still exist internally")
}

func TestHungarian_AssignsMinimumCost(t *testing.T) {
	cost := [][]float64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	}
	assignment := hungarian(cost)
	require.Len(t, assignment, 3)

	total := 0.0
	for i, j := range assignment {
		require.GreaterOrEqual(t, j, 0)
		total += cost[i][j]
	}
	assert.Equal(t, 5.0, total)
}
