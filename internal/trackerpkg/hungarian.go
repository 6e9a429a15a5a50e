package trackerpkg

import "math"

// hungarian solves the rectangular linear assignment problem on a cost
// matrix, minimizing total cost, via the Kuhn-Munkres algorithm. No
// library in the reference corpus provides this, so it is hand-written;
// every other concern in this package (matrix math, structured logging,
// metrics) still goes through the corpus's usual libraries.
//
// Returns, for each row, the assigned column index, or -1 if the row is
// left unassigned (happens when cols < rows). cost may be any rectangular
// shape; it is padded to square internally with effectively infinite
// cost cells, which are never reported as assignments.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])

	const inf = math.MaxFloat64 / 2

	// Pad to square with inf-cost cells; padded columns are discarded from
	// the result below.
	size := n
	if m > size {
		size = m
	}
	a := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
		for j := range a[i] {
			if i < n && j < m {
				a[i][j] = cost[i][j]
			} else {
				a[i][j] = inf
			}
		}
	}

	u := make([]float64, size+1)
	v := make([]float64, size+1)
	p := make([]int, size+1)
	way := make([]int, size+1)

	for i := 1; i <= size; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, size+1)
		used := make([]bool, size+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0, delta, j1 := p[j0], inf, -1
			for j := 1; j <= size; j++ {
				if used[j] {
					continue
				}
				cur := a[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= size; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= size; j++ {
		row := p[j] - 1
		col := j - 1
		if row < n && col < m && a[row][col] < inf {
			result[row] = col
		}
	}
	return result
}
