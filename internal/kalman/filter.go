// Package kalman implements the constant-velocity Kalman filter the
// Detection and Tracker stages use to predict box positions between
// detections (spec §4.E, §4.G), built on gonum's matrix package the way numerical code in
// this corpus leans on gonum rather than hand-rolled linear algebra.
package kalman

import "gonum.org/v1/gonum/mat"

// State is a constant-velocity bounding-box filter: position (x, y, w, h)
// and velocity (vx, vy, vw, vh) in an 8-dimensional state vector.
type State struct {
	x  *mat.VecDense // 8x1 state
	p  *mat.Dense    // 8x8 covariance
	q  *mat.Dense    // process noise
	r  *mat.Dense    // measurement noise
	f  *mat.Dense    // state transition
	h  *mat.Dense    // measurement model
}

// NewState initializes a filter at the given bounding box with zero
// initial velocity. processNoise and measurementNoise are the diagonal
// variances applied to Q and R.
func NewState(bbox [4]float64, processNoise, measurementNoise float64) *State {
	x := mat.NewVecDense(8, []float64{bbox[0], bbox[1], bbox[2], bbox[3], 0, 0, 0, 0})

	p := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		p.Set(i, i, 10)
	}

	q := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		q.Set(i, i, processNoise)
	}

	r := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		r.Set(i, i, measurementNoise)
	}

	f := identity(8)
	for i := 0; i < 4; i++ {
		f.Set(i, i+4, 1) // x += vx * dt, with dt folded into Predict's scaling
	}

	h := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		h.Set(i, i, 1)
	}

	return &State{x: x, p: p, q: q, r: r, f: f, h: h}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Predict advances the state by dt (in frame units; one frame interval is
// typically dt=1) and returns the predicted bounding box.
func (s *State) Predict(dt float64) [4]float64 {
	f := mat.DenseCopyOf(s.f)
	for i := 0; i < 4; i++ {
		f.Set(i, i+4, dt)
	}

	var xNext mat.VecDense
	xNext.MulVec(f, s.x)
	s.x = &xNext

	var fp, fpft, pNext mat.Dense
	fp.Mul(f, s.p)
	fpft.Mul(&fp, f.T())
	pNext.Add(&fpft, s.q)
	s.p = &pNext

	return s.BBox()
}

// Update corrects the predicted state with an observed bounding box.
func (s *State) Update(bbox [4]float64) {
	z := mat.NewVecDense(4, bbox[:])

	var hx mat.VecDense
	hx.MulVec(s.h, s.x)

	var y mat.VecDense
	y.SubVec(z, &hx)

	var hp, hpht, sMat mat.Dense
	hp.Mul(s.h, s.p)
	hpht.Mul(&hp, s.h.T())
	sMat.Add(&hpht, s.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&sMat); err != nil {
		// Singular innovation covariance: skip the correction rather than
		// propagate NaNs into the track state.
		return
	}

	var pht, k mat.Dense
	pht.Mul(s.p, s.h.T())
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &y)

	var xNext mat.VecDense
	xNext.AddVec(s.x, &ky)
	s.x = &xNext

	var kh, pNext mat.Dense
	kh.Mul(&k, s.h)
	ident := identity(8)
	kh.Sub(ident, &kh)
	pNext.Mul(&kh, s.p)
	s.p = &pNext
}

// BBox returns the filter's current bounding-box estimate.
func (s *State) BBox() [4]float64 {
	return [4]float64{s.x.AtVec(0), s.x.AtVec(1), s.x.AtVec(2), s.x.AtVec(3)}
}

// Velocity returns the filter's current (vx, vy, vw, vh) estimate.
func (s *State) Velocity() [4]float64 {
	return [4]float64{s.x.AtVec(4), s.x.AtVec(5), s.x.AtVec(6), s.x.AtVec(7)}
}
