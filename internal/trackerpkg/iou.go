// Package trackerpkg implements the per-camera Tracker (spec §4.G):
// IoU-based detection-to-track association via the Hungarian algorithm,
// non-max suppression, and a TENTATIVE/CONFIRMED/DELETED track lifecycle,
// with Kalman-predicted motion from internal/kalman.
package trackerpkg

import "github.com/grafana/mcmot/internal/envelope"

// IoU returns the intersection-over-union of two [x, y, w, h] boxes.
func IoU(a, b envelope.BBox) float64 {
	ax1, ay1, ax2, ay2 := a[0], a[1], a[0]+a[2], a[1]+a[3]
	bx1, by1, bx2, by2 := b[0], b[1], b[0]+b[2], b[1]+b[3]

	ix1, iy1 := max(ax1, bx1), max(ay1, by1)
	ix2, iy2 := min(ax2, bx2), min(ay2, by2)

	iw, ih := max(0, ix2-ix1), max(0, iy2-iy1)
	inter := iw * ih
	if inter <= 0 {
		return 0
	}

	areaA := a[2] * a[3]
	areaB := b[2] * b[3]
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// NMS performs greedy non-max suppression over dets, keeping the
// highest-scoring box in each cluster of boxes whose IoU exceeds
// threshold. Returns the indices (into dets) of the boxes kept, in
// descending score order.
func NMS(dets []envelope.Detection, threshold float64) []int {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	// simple insertion sort by descending score: detection counts per
	// frame are small enough that this never shows up in profiles.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && dets[order[j]].Score > dets[order[j-1]].Score; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	suppressed := make([]bool, len(dets))
	var kept []int
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, i)
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if dets[i].ClassID == dets[j].ClassID && IoU(dets[i].BBox, dets[j].BBox) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
