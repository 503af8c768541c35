package sigmoid

import "math"

// Grid returns uniformly spaced depths from lo to hi (inclusive when hi falls
// on the grid) at the given step.
func Grid(lo, hi, step float64) []float64 {
	if step <= 0 || hi < lo || math.IsNaN(lo) || math.IsNaN(hi) {
		return nil
	}
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = lo + float64(i)*step
	}
	return grid
}

// Differences returns the discrete first and second derivatives of a series
// sampled at a uniform step. Interior points use central differences; the
// end points use one-sided differences.
func Differences(y []float64, step float64) ([]float64, []float64) {
	n := len(y)
	d1 := make([]float64, n)
	d2 := make([]float64, n)
	if n < 2 {
		return d1, d2
	}

	d1[0] = (y[1] - y[0]) / step
	d1[n-1] = (y[n-1] - y[n-2]) / step
	for i := 1; i < n-1; i++ {
		d1[i] = (y[i+1] - y[i-1]) / (2 * step)
	}

	if n < 3 {
		return d1, d2
	}
	h2 := step * step
	for i := 1; i < n-1; i++ {
		d2[i] = (y[i+1] - 2*y[i] + y[i-1]) / h2
	}
	d2[0] = d2[1]
	d2[n-1] = d2[n-2]
	return d1, d2
}
