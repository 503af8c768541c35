package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

func TestLinearCalibrateTwoPointScenario(t *testing.T) {
	cal, err := LinearCalibrate([]AnchorPoint{
		{Measured: -300, Physical: 0},
		{Measured: 0, Physical: 250},
	}, "µmol/L")
	require.NoError(t, err)

	assert.InDelta(t, 125, cal.Convert(-150), 1e-9)
	assert.InDelta(t, 250.0/300.0, cal.Slope, 1e-12)
	assert.InDelta(t, 250, cal.Intercept, 1e-9)
	assert.Equal(t, TypeTwoPoint, cal.Type)
	assert.Equal(t, "µmol/L", cal.Unit)
}

func TestLinearCalibrateLeastSquares(t *testing.T) {
	cal, err := LinearCalibrate([]AnchorPoint{
		{Measured: 1, Physical: 3},
		{Measured: 2, Physical: 5},
		{Measured: 4, Physical: 9},
	}, "")
	require.NoError(t, err)
	assert.InDelta(t, 2, cal.Slope, 1e-12)
	assert.InDelta(t, 1, cal.Intercept, 1e-12)
}

func TestLinearCalibrateDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		points []AnchorPoint
	}{
		{"identical measured", []AnchorPoint{{Measured: -10, Physical: 0}, {Measured: -10, Physical: 250}}},
		{"single point", []AnchorPoint{{Measured: -10, Physical: 0}}},
		{"no points", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LinearCalibrate(tt.points, "")
			assert.ErrorIs(t, err, core.ErrDegenerateAnchors)
		})
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	cal := Calibration{Slope: 0.83, Intercept: 241.5}
	want := []float64{250, 180.5, 90, 12.25, 0}

	signal := make([]float64, len(want))
	depths := make([]float64, len(want))
	for i, c := range want {
		signal[i] = cal.Invert(c)
		depths[i] = float64(i) * 50
	}
	p, err := core.NewProfile(core.SampleKey{Core: "A", Sample: "1"}, "O2", depths, signal)
	require.NoError(t, err)

	out, err := cal.Apply(p)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, out.Channel(core.ChannelConcentration), 1e-9)
	assert.False(t, p.HasChannel(core.ChannelConcentration))
}

func TestExternal(t *testing.T) {
	cal, err := External(-0.0591, 7.0, "pH")
	require.NoError(t, err)
	assert.Equal(t, ScopeExternal, cal.Scope)
	assert.Equal(t, TypeExternal, cal.Type)

	_, err = External(0, 1, "pH")
	assert.ErrorIs(t, err, core.ErrDegenerateAnchors)
}

func sparseProfile(t *testing.T, c, s string, signal ...float64) *core.Profile {
	t.Helper()
	depths := make([]float64, len(signal))
	for i := range depths {
		depths[i] = float64(i) * 150
	}
	p, err := core.NewProfile(core.SampleKey{Core: c, Sample: s}, "O2", depths, signal)
	require.NoError(t, err)
	return p
}

func TestEstimateAnchorsWidening(t *testing.T) {
	p := sparseProfile(t, "A", "1", 10, 12, 11, 9, 3, -5, -6, -4)

	a, err := EstimateAnchors(p, core.ChannelSignal, DefaultAnchorOptions())
	require.NoError(t, err)

	// high plateau: one sample within ±100, widened to ±200
	assert.True(t, a.High.Widened)
	assert.Equal(t, 200.0, a.High.Window)
	assert.Equal(t, 3, a.High.N)
	assert.Equal(t, 150.0, a.High.Depth)
	assert.InDelta(t, 11, a.High.Mean, 1e-12)
	assert.InDelta(t, 1, a.High.Std, 1e-12)

	// low plateau: one sample within ±100, recomputed over ±50
	assert.True(t, a.Low.Widened)
	assert.Equal(t, 50.0, a.Low.Window)
	assert.Equal(t, 1, a.Low.N)
	assert.Equal(t, -6.0, a.Low.Mean)
	assert.Zero(t, a.Low.Std)
}

func TestEstimateAnchorsLowFallbackNarrows(t *testing.T) {
	p, err := core.NewProfile(core.SampleKey{Core: "A", Sample: "1"}, "O2",
		[]float64{0, 150, 300, 370, 600}, []float64{5, 4, -6, -2, 1})
	require.NoError(t, err)

	a, err := EstimateAnchors(p, core.ChannelSignal, DefaultAnchorOptions())
	require.NoError(t, err)

	// ±100 around 300 holds two samples (mean -4), too few, so ±50 applies
	assert.Equal(t, 300.0, a.Low.Depth)
	assert.True(t, a.Low.Widened)
	assert.Equal(t, 50.0, a.Low.Window)
	assert.Equal(t, 1, a.Low.N)
	assert.Equal(t, -6.0, a.Low.Mean)
}

func TestEstimateAnchorsDenseWindow(t *testing.T) {
	var depths, signal []float64
	for d := -500.0; d <= 1000; d += 25 {
		depths = append(depths, d)
		switch {
		case d < 0:
			signal = append(signal, 100)
		case d < 300:
			signal = append(signal, 100-d/3)
		default:
			signal = append(signal, 0)
		}
	}
	signal[4] = 101 // single maximum in the water column
	p, err := core.NewProfile(core.SampleKey{Core: "A", Sample: "1"}, "O2", depths, signal)
	require.NoError(t, err)

	a, err := EstimateAnchors(p, core.ChannelSignal, AnchorOptions{Window: 50})
	require.NoError(t, err)
	assert.False(t, a.High.Widened)
	assert.Equal(t, 5, a.High.N)
	assert.InDelta(t, 100.2, a.High.Mean, 1e-9)
	// first minimum sits at the top of the anoxic plateau, so the window
	// still reaches two samples of the gradient above it
	assert.Equal(t, 300.0, a.Low.Depth)
	assert.InDelta(t, 5, a.Low.Mean, 1e-9)
}

func TestEstimateAnchorsErrors(t *testing.T) {
	p := sparseProfile(t, "A", "1", 1, 2, 3)
	_, err := EstimateAnchors(p, "ph", DefaultAnchorOptions())
	assert.ErrorIs(t, err, core.ErrMissingChannel)
}

func TestCombine(t *testing.T) {
	a1 := Anchors{High: Anchor{Mean: 10, N: 3}, Low: Anchor{Mean: -2, N: 3}}
	a2 := Anchors{High: Anchor{Mean: 12, N: 2}, Low: Anchor{Mean: -4, N: 1, Defaulted: true}}

	c, err := Combine("A", []Anchors{a1, a2})
	require.NoError(t, err)
	assert.Equal(t, "A", c.Key.Core)
	assert.InDelta(t, 11, c.High.Mean, 1e-12)
	assert.InDelta(t, -3, c.Low.Mean, 1e-12)
	assert.Equal(t, 5, c.High.N)
	assert.True(t, c.Low.Defaulted)

	_, err = Combine("B", nil)
	assert.ErrorIs(t, err, core.ErrEmptyProfile)
}

func testStore(t *testing.T) *core.Store {
	t.Helper()
	store := core.NewStore()
	require.NoError(t, store.Put(sparseProfile(t, "A", "1", 0, 0, 0, -150, -300, -300, -300)))
	require.NoError(t, store.Put(sparseProfile(t, "A", "2", 0, 0, 0, -150, -300, -300, -300)))
	require.NoError(t, store.Put(sparseProfile(t, "B", "1", 20, 20, 20, -100, -200, -200, -200)))
	require.NoError(t, store.Put(sparseProfile(t, "C", "1", 5, 5, 5, 5)))
	return store
}

func TestEnginePerCore(t *testing.T) {
	e := &Engine{Anchors: DefaultAnchorOptions(), Bounds: Bounds{High: 250, Low: 0}, Unit: "µmol/L"}

	set, fails := e.Calibrate(testStore(t), Mode{Scope: ScopePerCore})

	require.Contains(t, set.ByCore, "A")
	require.Contains(t, set.ByCore, "B")
	assert.NotContains(t, set.ByCore, "C", "flat core has degenerate anchors")
	assert.Equal(t, ScopePerCore, set.ByCore["A"].Scope)
	assert.Equal(t, "A", set.ByCore["A"].Reference)
	assert.Equal(t, "B", set.ByCore["B"].Reference)
	assert.InDelta(t, 125, set.ByCore["A"].Convert(-150), 1e-9)
	assert.InDelta(t, 125, set.ByCore["B"].Convert(-90), 1e-9)

	require.Equal(t, 1, fails.Len())
	f := fails.List()[0]
	assert.Equal(t, "C", f.Key.Core)
	assert.Equal(t, core.KindInput, f.Kind)
	assert.ErrorIs(t, f, core.ErrDegenerateAnchors)
}

func TestEngineSingleCore(t *testing.T) {
	e := &Engine{Anchors: DefaultAnchorOptions(), Bounds: Bounds{High: 250, Low: 0}, Unit: "µmol/L"}
	store := testStore(t)

	set, fails := e.Calibrate(store, Mode{Scope: ScopeSingleCore, Reference: "A"})
	assert.Zero(t, fails.Len())
	for _, c := range []string{"A", "B", "C"} {
		cal := set.ByCore[c]
		assert.Equal(t, ScopeSingleCore, cal.Scope)
		assert.Equal(t, "A", cal.Reference)
		assert.InDelta(t, 125, cal.Convert(-150), 1e-9)
	}

	p, _ := store.Get(core.SampleKey{Core: "B", Sample: "1"})
	out, err := set.Apply(p)
	require.NoError(t, err)
	assert.InDelta(t, 250+20*250.0/300.0, out.Channel(core.ChannelConcentration)[0], 1e-9)

	_, fails = e.Calibrate(store, Mode{Scope: ScopeSingleCore, Reference: "Z"})
	assert.Equal(t, 3, fails.Len())
}

func TestEngineExternal(t *testing.T) {
	e := &Engine{}
	ext, err := External(2, 1, "pH")
	require.NoError(t, err)

	set, fails := e.Calibrate(testStore(t), Mode{Scope: ScopeExternal, External: ext})
	assert.Zero(t, fails.Len())
	assert.Len(t, set.ByCore, 3)
	assert.Equal(t, ScopeExternal, set.Mode.Scope)

	_, fails = e.Calibrate(testStore(t), Mode{Scope: ScopeExternal})
	assert.Equal(t, 3, fails.Len())
}

func TestSetApplyMissingCore(t *testing.T) {
	set := Set{ByCore: map[string]Calibration{}}
	_, err := set.Apply(sparseProfile(t, "A", "1", 1, 2, 3))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{
		"per-core":    ScopePerCore,
		"single-core": ScopeSingleCore,
		"External":    ScopeExternal,
	} {
		got, err := ParseScope(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, want.String(), got.String())
	}
	_, err := ParseScope("bogus")
	assert.Error(t, err)
}
