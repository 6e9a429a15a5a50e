package kalman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_PredictAdvancesPositionByVelocity(t *testing.T) {
	s := NewState([4]float64{10, 10, 20, 20}, 1e-2, 1e-1)

	s.Update([4]float64{11, 10, 20, 20})
	s.Predict(1)
	s.Update([4]float64{12, 10, 20, 20})

	bbox := s.Predict(1)
	assert.Greater(t, bbox[0], 12.0, "x should keep advancing once velocity is observed")
}

func TestState_UpdateConvergesTowardMeasurement(t *testing.T) {
	s := NewState([4]float64{0, 0, 10, 10}, 1e-2, 1e-1)

	for i := 0; i < 20; i++ {
		s.Predict(1)
		s.Update([4]float64{5, 5, 10, 10})
	}

	bbox := s.BBox()
	assert.InDelta(t, 5.0, bbox[0], 0.5)
	assert.InDelta(t, 5.0, bbox[1], 0.5)
}
