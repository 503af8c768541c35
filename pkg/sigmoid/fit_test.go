package sigmoid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// o2Profile is an oxygen-like profile: 0 mV in the water column falling to
// -300 mV in the sediment with the steepest point at 1000 µm.
var o2Params = Params{A: -300, B: 10, C: 0.01, D: -300}

func synthetic(p Params, from, to, step float64, noise float64) ([]float64, []float64) {
	var x, y []float64
	for d := from; d <= to+1e-9; d += step {
		x = append(x, d)
		// deterministic pseudo-noise
		y = append(y, p.Eval(d)+noise*math.Sin(d*0.37))
	}
	return x, y
}

func TestFitFourParamRecoversModel(t *testing.T) {
	x, y := synthetic(o2Params, 0, 2000, 100, 0)

	r := Fit(x, y, FourParam, Options{Step: 10})
	require.True(t, r.Valid, r.Reason)
	assert.True(t, r.Converged)
	assert.Equal(t, 21, r.N)

	assert.InDelta(t, -300, r.Params.A, 0.5)
	assert.InDelta(t, -300, r.Params.D, 0.5)
	assert.InDelta(t, 0.01, r.Params.C, 1e-4)
	assert.InDelta(t, 1000, r.Params.Inflection(), 1)
	assert.Less(t, r.RMSE, 0.1)

	// steepest descent of the resampled curve within one grid step
	assert.InDelta(t, 1000, r.Shift, 10)
	assert.Equal(t, r.Shift, r.Grid[r.ShiftIndex()])
}

func TestFitThreeParam(t *testing.T) {
	p := Params{A: -50, B: 6, C: 0.02}
	x, y := synthetic(p, 0, 600, 20, 0)

	r := Fit(x, y, ThreeParam, Options{Step: 5})
	require.True(t, r.Valid, r.Reason)
	assert.Equal(t, 0.0, r.Params.D)
	assert.InDelta(t, -50, r.Params.A, 0.1)
	assert.InDelta(t, 300, r.Params.Inflection(), 1)
	assert.Len(t, r.Params.Slice(ThreeParam), 3)
}

func TestFitSeedPolicy(t *testing.T) {
	x := []float64{0, 10, 20, 30, 40, 50, 60}
	y := []float64{1, 2, 3, 50, 97, 98, 99}

	r := Fit(x, y, FourParam, Options{Step: 1, SeedB: 0.3, SeedC: 0.2})
	assert.InDelta(t, -2, r.Seed.A, 1e-12)
	assert.InDelta(t, -98, r.Seed.D, 1e-12)
	assert.Equal(t, 0.3, r.Seed.B)
	assert.Equal(t, 0.2, r.Seed.C)

	r3 := Fit(x, y, ThreeParam, Options{Step: 1})
	assert.Zero(t, r3.Seed.D)
}

func TestFitInvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		x, y   []float64
		reason string
	}{
		{"no points", nil, nil, "insufficient points"},
		{"two points", []float64{0, 1}, []float64{1, 2}, "insufficient points"},
		{"NaN filtered below minimum", []float64{0, 1, 2}, []float64{1, math.NaN(), 3}, "insufficient points"},
		{"zero span", []float64{5, 5, 5}, []float64{1, 2, 3}, "zero depth span"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Fit(tt.x, tt.y, FourParam, DefaultOptions())
			assert.False(t, r.Valid)
			assert.Equal(t, tt.reason, r.Reason)
			assert.True(t, math.IsNaN(r.Shift))
			assert.Equal(t, -1, r.ShiftIndex())
		})
	}

	r := Fit([]float64{0, 1, 2}, []float64{1, 2, 3}, Variant(7), DefaultOptions())
	assert.False(t, r.Valid)
}

func TestFitGridTooCoarse(t *testing.T) {
	x, y := synthetic(o2Params, 0, 2000, 100, 0)
	r := Fit(x, y, FourParam, Options{Step: 1500})
	assert.False(t, r.Valid)
	assert.Equal(t, "resampling grid too coarse", r.Reason)
}

func TestFitIsIdempotent(t *testing.T) {
	x, y := synthetic(o2Params, 0, 2000, 50, 4)

	first := Fit(x, y, FourParam, Options{Step: 10})
	second := Fit(x, y, FourParam, Options{Step: 10})
	require.True(t, first.Valid, first.Reason)
	assert.Equal(t, first, second)
	assert.InDelta(t, 1000, first.Shift, 50)
}

func TestFitUnsortedInputMatchesSorted(t *testing.T) {
	x, y := synthetic(o2Params, 0, 2000, 100, 0)
	rx := make([]float64, len(x))
	ry := make([]float64, len(y))
	for i := range x {
		rx[len(x)-1-i] = x[i]
		ry[len(y)-1-i] = y[i]
	}

	a := Fit(x, y, FourParam, Options{Step: 10})
	b := Fit(rx, ry, FourParam, Options{Step: 10})
	assert.Equal(t, a.Params, b.Params)
	assert.Equal(t, a.Shift, b.Shift)
}

func TestFitRepeatedDepthKeepsFirst(t *testing.T) {
	x, y := synthetic(o2Params, 0, 2000, 100, 0)
	dx := append([]float64(nil), x...)
	dy := append([]float64(nil), y...)
	// a late re-reading at 500 and 1500 µm far off the curve
	dx = append(dx, 1500, 500)
	dy = append(dy, 40, -290)

	a := Fit(x, y, FourParam, Options{Step: 10})
	b := Fit(dx, dy, FourParam, Options{Step: 10})
	require.True(t, b.Valid, b.Reason)
	assert.Equal(t, 21, b.N)
	assert.Equal(t, a.Params, b.Params)
	assert.Equal(t, a.Shift, b.Shift)

	xs, ys := finitePairs([]float64{20, 10, 20, 10}, []float64{1, 2, 3, 4})
	assert.Equal(t, []float64{10, 20}, xs)
	assert.Equal(t, []float64{2, 1}, ys)
}

func TestFitDoesNotModifyInput(t *testing.T) {
	x := []float64{300, 0, 200, 100}
	y := []float64{-300, 0, -250, -20}
	xc := append([]float64(nil), x...)
	yc := append([]float64(nil), y...)

	Fit(x, y, FourParam, DefaultOptions())
	assert.Equal(t, xc, x)
	assert.Equal(t, yc, y)
}

func TestGrid(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Grid(0, 1, 0.25))
	assert.InDeltaSlice(t, []float64{0, 0.3, 0.6, 0.9}, Grid(0, 1, 0.3), 1e-12)
	assert.Equal(t, []float64{-100, 0, 100}, Grid(-100, 100, 100))
	assert.Nil(t, Grid(0, 1, 0))
	assert.Nil(t, Grid(1, 0, 0.1))
}

func TestDifferences(t *testing.T) {
	// y = x^2 on a unit grid
	y := []float64{0, 1, 4, 9, 16, 25}
	d1, d2 := Differences(y, 1)

	assert.Equal(t, []float64{1, 2, 4, 6, 8, 9}, d1)
	assert.Equal(t, []float64{2, 2, 2, 2, 2, 2}, d2)

	d1, d2 = Differences([]float64{1}, 1)
	assert.Equal(t, []float64{0}, d1)
	assert.Equal(t, []float64{0}, d2)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "3-parameter", ThreeParam.String())
	assert.Equal(t, "4-parameter", FourParam.String())
	assert.Equal(t, 4, FourParam.NumParams())
}
