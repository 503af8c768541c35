package penetration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/sigmoid"
)

// oxygen falls from 250 µmol/L to zero with the steepest point at 300 µm
var o2 = sigmoid.Params{A: -250, B: 6, C: 0.02}

func o2Profile(t *testing.T, sample string, offset float64) *core.Profile {
	t.Helper()
	var depths, conc []float64
	for d := 0.0; d <= 1000; d += 20 {
		depths = append(depths, d)
		conc = append(conc, o2.Eval(d)+offset)
	}
	p, err := core.NewProfile(core.SampleKey{Core: "A", Sample: sample}, "O2", depths, conc)
	require.NoError(t, err)
	p, err = p.WithChannel(core.ChannelConcentration, conc)
	require.NoError(t, err)
	return p
}

func TestEstimate(t *testing.T) {
	r := Estimate(o2Profile(t, "1", 0), 1, DefaultOptions())
	require.True(t, r.Fit.Valid, r.Fit.Reason)
	require.True(t, r.Found)

	// 250·(1 - exp(-exp(6 - 0.02x))) = 1 at x ≈ 576
	assert.InDelta(t, 576, r.Depth, 2)
	assert.Less(t, r.Concentration, 1.0)
	assert.InDelta(t, 1, r.Concentration, 0.1)
	assert.InDelta(t, 0, r.Baseline, 1e-3)
}

func TestEstimateRemovesBackground(t *testing.T) {
	plain := Estimate(o2Profile(t, "1", 0), 1, DefaultOptions())
	offset := Estimate(o2Profile(t, "1", 40), 1, DefaultOptions())
	require.True(t, offset.Found)
	assert.InDelta(t, 40, offset.Baseline, 1e-3)
	assert.InDelta(t, plain.Depth, offset.Depth, 2)
}

func TestEstimateThresholdOrdering(t *testing.T) {
	p := o2Profile(t, "1", 0)
	prev := math.Inf(1)
	for _, thr := range []float64{0.5, 1, 10, 50, 100, 200} {
		r := Estimate(p, thr, DefaultOptions())
		require.True(t, r.Found, "threshold %g", thr)
		assert.LessOrEqual(t, r.Depth, prev, "threshold %g", thr)
		prev = r.Depth
	}
}

func TestEstimateNoCrossing(t *testing.T) {
	r := Estimate(o2Profile(t, "1", 0), 300, DefaultOptions())
	assert.True(t, r.Fit.Valid)
	assert.False(t, r.Found)
	assert.True(t, math.IsNaN(r.Depth))
	assert.True(t, math.IsNaN(r.Concentration))
}

func TestEstimateUncalibrated(t *testing.T) {
	p, err := core.NewProfile(core.SampleKey{Core: "A", Sample: "1"}, "O2", []float64{0, 1, 2, 3}, []float64{4, 3, 2, 1})
	require.NoError(t, err)

	r := Estimate(p, 1, DefaultOptions())
	assert.False(t, r.Found)
	assert.False(t, r.Fit.Valid)
	assert.Equal(t, "insufficient points", r.Fit.Reason)
}

func TestCrossing(t *testing.T) {
	tests := []struct {
		name  string
		curve []float64
		thr   float64
		want  int
	}{
		{"simple", []float64{5, 4, 3, 2, 1}, 2.5, 3},
		{"starts below", []float64{1, 0.5, 0}, 2, -1},
		{"never below", []float64{5, 4, 3}, 1, -1},
		{"rises then falls", []float64{0, 3, 1}, 2, 2},
		{"equal is not below", []float64{3, 2, 2, 1}, 2, 3},
		{"empty", nil, 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Crossing(tt.curve, tt.thr))
		})
	}
}

func result(c, s string, depth, conc float64) Result {
	return Result{
		Key:           core.SampleKey{Core: c, Sample: s},
		Threshold:     1,
		Found:         !math.IsNaN(depth),
		Depth:         depth,
		Concentration: conc,
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		result("A", "3", 600, 0.9),
		result("A", "1", 500, 0.8),
		result("A", "2", 700, 1.0),
		result("A", "4", math.NaN(), math.NaN()),
		result("B", "1", 100, 0.1),
	}
	ex := NewExclusions()

	s := Summarize("A", results, ex)
	assert.Equal(t, 3, s.N)
	assert.InDelta(t, 600, s.DepthMean, 1e-9)
	assert.InDelta(t, 100, s.DepthStd, 1e-9)
	assert.InDelta(t, 0.9, s.ConcMean, 1e-9)
	require.Len(t, s.Rows, 4)
	assert.Equal(t, "1", s.Rows[0].Sample)
	assert.False(t, s.Rows[3].Found)

	assert.True(t, ex.Toggle("A", "2"))
	excluded := Summarize("A", results, ex)
	assert.Equal(t, 2, excluded.N)
	assert.InDelta(t, 550, excluded.DepthMean, 1e-9)
	assert.True(t, excluded.Rows[1].Excluded)

	assert.False(t, ex.Toggle("A", "2"))
	assert.Equal(t, s, Summarize("A", results, ex))
}

func TestSummarizeSmallSets(t *testing.T) {
	single := Summarize("B", []Result{result("B", "1", 100, 0.1)}, nil)
	assert.Equal(t, 1, single.N)
	assert.Equal(t, 100.0, single.DepthMean)
	assert.Zero(t, single.DepthStd)

	none := Summarize("C", []Result{result("C", "1", math.NaN(), math.NaN())}, nil)
	assert.Zero(t, none.N)
	assert.True(t, math.IsNaN(none.DepthMean))
	assert.True(t, math.IsNaN(none.ConcStd))
}

func TestSummarizeAll(t *testing.T) {
	results := []Result{result("B", "1", 100, 0.1), result("A", "1", 200, 0.2)}
	all := SummarizeAll(results, NewExclusions())
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Core)
	assert.Equal(t, "B", all[1].Core)
}

func TestExclusions(t *testing.T) {
	ex := NewExclusions()
	ex.Set("A", "2", true)
	ex.Set("A", "1", true)
	ex.Set("B", "1", true)
	assert.Equal(t, []string{"1", "2"}, ex.List("A"))

	ex.Set("A", "1", false)
	assert.Equal(t, []string{"2"}, ex.List("A"))
	assert.False(t, ex.Excluded("A", "1"))
	assert.True(t, ex.Excluded("B", "1"))
	assert.Empty(t, ex.List("Z"))

	var nilSet *Exclusions
	assert.False(t, nilSet.Excluded("A", "2"))
	assert.NotPanics(t, func() { assert.Empty(t, nilSet.List("A")) })
}
