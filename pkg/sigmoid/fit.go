package sigmoid

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// MinPoints is the smallest number of finite samples a fit accepts.
const MinPoints = 3

// Options controls fitting and resampling.
type Options struct {
	Step          float64 // resampling grid step in depth units
	SeedB         float64 // initial shift
	SeedC         float64 // initial slope
	MaxIterations int     // optimizer iteration budget
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Step:          1,
		SeedB:         0.1,
		SeedC:         0.1,
		MaxIterations: 2000,
	}
}

// FitResult is the outcome of one fit. It is never modified after Fit
// returns; a re-fit produces a new FitResult.
type FitResult struct {
	Variant   Variant
	Params    Params
	Seed      Params
	Valid     bool
	Converged bool
	Reason    string // why the result is invalid or unconverged

	N    int     // finite samples used
	SSE  float64 // residual sum of squares, raw units
	RMSE float64

	Step  float64
	Grid  []float64 // uniform depths spanning the observed range
	Curve []float64 // model evaluated on Grid
	D1    []float64 // first difference of Curve
	D2    []float64 // second difference of Curve
	Shift float64   // Grid depth of steepest descent (argmin D1)
}

// Eval evaluates the fitted model at depth x.
func (r FitResult) Eval(x float64) float64 {
	return r.Params.Eval(x)
}

// ShiftIndex returns the index into Grid of Shift, or -1 for an invalid fit.
func (r FitResult) ShiftIndex() int {
	if !r.Valid || len(r.D1) == 0 {
		return -1
	}
	return floats.MinIdx(r.D1)
}

func invalid(v Variant, n int, reason string) FitResult {
	return FitResult{
		Variant: v,
		N:       n,
		Reason:  reason,
		Shift:   math.NaN(),
		SSE:     math.NaN(),
		RMSE:    math.NaN(),
	}
}

// Fit fits the model variant to (depths, signal) by non-linear least squares
// and resamples the fitted curve on a uniform grid of opts.Step.
//
// Fit never panics or returns an error: too few points, a zero depth span or
// a non-convergent optimisation yield a FitResult with Valid == false.
func Fit(depths, signal []float64, variant Variant, opts Options) FitResult {
	if variant != ThreeParam && variant != FourParam {
		return invalid(variant, 0, "unknown model variant")
	}
	def := DefaultOptions()
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}

	x, y := finitePairs(depths, signal)
	n := len(x)
	if n < MinPoints {
		return invalid(variant, n, "insufficient points")
	}

	xmin, xmax := x[0], x[n-1]
	span := xmax - xmin
	if span <= 0 {
		return invalid(variant, n, "zero depth span")
	}

	seed := Params{
		A: -stat.Mean(y[:MinPoints], nil),
		B: opts.SeedB,
		C: opts.SeedC,
	}
	if variant == FourParam {
		seed.D = -stat.Mean(y[n-MinPoints:], nil)
	}

	// Work on a normalised axis t = (x - xmin)/span and signal y/scale so that
	// the start grid and tolerances do not depend on units.
	scale := floats.Norm(y, math.Inf(1))
	if scale == 0 {
		scale = 1
	}
	p := &problem{
		variant: variant,
		t:       make([]float64, n),
		y:       make([]float64, n),
		seedA:   seed.A / scale,
		seedD:   seed.D / scale,
	}
	for i := range x {
		p.t[i] = (x[i] - xmin) / span
		p.y[i] = y[i] / scale
	}

	start := p.bestStart([]float64{seed.B - seed.C*xmin, seed.C * span})
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: p.sse}, start, settings, &optimize.NelderMead{})
	if err != nil {
		slog.Debug("sigmoid fit failed", "variant", variant.String(), "error", err)
		return invalid(variant, n, "optimizer: "+err.Error())
	}
	if res.Status == optimize.IterationLimit || res.Status == optimize.FunctionEvaluationLimit {
		return invalid(variant, n, "did not converge: "+res.Status.String())
	}

	bn, cn := res.X[0], res.X[1]
	an, dn := p.linear(bn, cn)
	params := Params{
		A: an * scale,
		B: bn + cn*xmin/span,
		C: cn / span,
		D: dn * scale,
	}
	if !finite(params.A, params.B, params.C, params.D) {
		return invalid(variant, n, "non-finite parameters")
	}

	r := FitResult{
		Variant:   variant,
		Params:    params,
		Seed:      seed,
		Valid:     true,
		Converged: true,
		N:         n,
		Step:      opts.Step,
	}

	for i := range x {
		e := params.Eval(x[i]) - y[i]
		r.SSE += e * e
	}
	r.RMSE = math.Sqrt(r.SSE / float64(n))

	r.Grid = Grid(xmin, xmax, opts.Step)
	if len(r.Grid) < MinPoints {
		out := invalid(variant, n, "resampling grid too coarse")
		out.Params = params
		out.Seed = seed
		return out
	}
	r.Curve = make([]float64, len(r.Grid))
	for i, g := range r.Grid {
		r.Curve[i] = params.Eval(g)
	}
	r.D1, r.D2 = Differences(r.Curve, opts.Step)
	r.Shift = r.Grid[floats.MinIdx(r.D1)]

	slog.Debug("sigmoid fit",
		"variant", variant.String(), "n", n, "a", params.A, "b", params.B,
		"c", params.C, "d", params.D, "rmse", r.RMSE, "shift", r.Shift)
	return r
}

// problem is the separable least-squares objective: for a given shift/slope
// pair the amplitude and offset are solved in closed form.
type problem struct {
	variant      Variant
	t, y         []float64
	seedA, seedD float64
}

// linear returns the least-squares amplitude and offset for fixed (b, c).
// When the sub-problem is singular the seed values are used.
func (p *problem) linear(b, c float64) (float64, float64) {
	var sg, sgg, sy, sgy float64
	for i, ti := range p.t {
		g := basis(b, c, ti)
		sg += g
		sgg += g * g
		sy += p.y[i]
		sgy += g * p.y[i]
	}
	n := float64(len(p.t))

	if p.variant == ThreeParam {
		if sgg < 1e-12 {
			return p.seedA, 0
		}
		return sgy / sgg, 0
	}

	det := n*sgg - sg*sg
	if det <= 1e-12*n*math.Max(sgg, 1) {
		return p.seedA, p.seedD
	}
	a := (n*sgy - sg*sy) / det
	d := (sgg*sy - sg*sgy) / det
	return a, d
}

func (p *problem) sse(q []float64) float64 {
	b, c := q[0], q[1]
	a, d := p.linear(b, c)
	var s float64
	for i, ti := range p.t {
		e := a*basis(b, c, ti) + d - p.y[i]
		s += e * e
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return math.MaxFloat64
	}
	return s
}

// Start grid: inflection positions across the normalised axis and slopes of
// both signs, steep and shallow.
var (
	startCenters = []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95}
	startSlopes  = []float64{-40, -20, -10, -5, -2, 2, 5, 10, 20, 40}
)

// bestStart evaluates the seed and the start grid and returns the candidate
// with the lowest residual. Ties keep the earlier candidate, the seed first.
func (p *problem) bestStart(seed []float64) []float64 {
	best := seed
	bestF := math.MaxFloat64
	if finite(seed...) {
		bestF = p.sse(seed)
	}
	for _, c := range startSlopes {
		for _, t0 := range startCenters {
			q := []float64{c * t0, c}
			if f := p.sse(q); f < bestF {
				best, bestF = q, f
			}
		}
	}
	return append([]float64(nil), best...)
}

// finitePairs drops non-finite samples and returns copies sorted by depth.
// A repeated depth keeps its first sample.
func finitePairs(depths, signal []float64) ([]float64, []float64) {
	n := min(len(depths), len(signal))
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if finite(depths[i], signal[i]) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return depths[idx[a]] < depths[idx[b]] })

	x := make([]float64, 0, len(idx))
	y := make([]float64, 0, len(idx))
	for _, i := range idx {
		if len(x) > 0 && depths[i] == x[len(x)-1] {
			continue
		}
		x = append(x, depths[i])
		y = append(y, signal[i])
	}
	return x, y
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
