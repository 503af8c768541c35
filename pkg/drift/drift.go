// Package drift corrects instrumental drift across a time-ordered package of
// profiles.
package drift

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// FitKind selects the regression used over acquisition index.
type FitKind int

// Fit kinds
const (
	Linear FitKind = iota
	Poly2
)

func (k FitKind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Poly2:
		return "poly2"
	default:
		return fmt.Sprintf("FitKind(%d)", int(k))
	}
}

// NumParams returns the number of regression coefficients.
func (k FitKind) NumParams() int {
	if k == Poly2 {
		return 3
	}
	return 2
}

// defaultReference is the index the correction levels towards: the first
// profile for a linear fit, the last one for a quadratic fit.
func (k FitKind) defaultReference(n int) float64 {
	if k == Poly2 {
		return float64(n - 1)
	}
	return 0
}

// ParseFitKind parses a fit kind name.
func ParseFitKind(s string) (FitKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "lin", "1":
		return Linear, nil
	case "poly2", "polynomial", "quadratic", "2":
		return Poly2, nil
	default:
		return 0, fmt.Errorf("unknown drift fit kind '%s', must be linear or poly2", s)
	}
}

// Method selects how the regression is turned into per-profile corrections.
type Method int

// Correction methods
const (
	// Offset adds ref − observed_i − c0, where ref is the regression at the
	// reference index and c0 its intercept. Every corrected water-column mean
	// becomes ref − c0, so scatter around the trend is removed too.
	Offset Method = iota
	// Trend adds fit(ref) − fit(i) and keeps each profile's residual.
	Trend
)

func (m Method) String() string {
	switch m {
	case Offset:
		return "offset"
	case Trend:
		return "trend"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses a correction method name.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offset", "":
		return Offset, nil
	case "trend":
		return Trend, nil
	default:
		return 0, fmt.Errorf("unknown drift method '%s', must be offset or trend", s)
	}
}

// Package is a run of profiles acquired in one continuous sequence.
type Package struct {
	ID      string
	Members []core.SampleKey // acquisition order
}

// Options controls the drift fit.
type Options struct {
	Samples   int      // leading depth samples averaged per profile
	Kind      FitKind  // regression over acquisition index
	Method    Method   // how corrections are derived from the regression
	Reference *float64 // index the series is levelled to, nil for the kind default
	Channel   string   // defaults to core.ChannelSignal
}

// DefaultOptions returns the drift defaults.
func DefaultOptions() Options {
	return Options{Samples: 5, Kind: Linear, Method: Offset, Channel: core.ChannelSignal}
}

// Result holds the diagnostics and corrected profiles of one package.
type Result struct {
	Package   string
	Kind      FitKind
	Method    Method
	Members   []core.SampleKey
	Observed  []float64 // per-profile mean of the leading samples
	Sigma     []float64 // standard deviation of those samples
	Coeffs    []float64 // ascending powers of the index
	Curve     []float64 // regression evaluated at each index
	Residuals []float64

	ReducedChiSq float64 // NaN when there are no degrees of freedom
	Weighted     bool    // chi-square used Sigma

	Reference      float64
	ReferenceValue float64
	Corrections    []float64 // additive, per profile
	Corrected      []float64 // Observed + Corrections
	Profiles       []*core.Profile
}

// Correct fits the package's observed series against acquisition index and
// returns corrected copies of every member. The store is not modified.
// Correcting an already corrected package applies the correction again.
func Correct(store *core.Store, pkg Package, opts Options) (Result, error) {
	if opts.Samples <= 0 {
		opts.Samples = DefaultOptions().Samples
	}
	if opts.Channel == "" {
		opts.Channel = core.ChannelSignal
	}
	if opts.Kind != Linear && opts.Kind != Poly2 {
		return Result{}, fmt.Errorf("package %s: unsupported fit kind %v", pkg.ID, opts.Kind)
	}
	if opts.Method != Offset && opts.Method != Trend {
		return Result{}, fmt.Errorf("package %s: unsupported drift method %v", pkg.ID, opts.Method)
	}

	n := len(pkg.Members)
	p := opts.Kind.NumParams()
	if n < p {
		return Result{}, fmt.Errorf("package %s has %d profiles, %s fit needs %d: %w",
			pkg.ID, n, opts.Kind, p, core.ErrInsufficientPoints)
	}

	res := Result{
		Package:  pkg.ID,
		Kind:     opts.Kind,
		Method:   opts.Method,
		Members:  append([]core.SampleKey(nil), pkg.Members...),
		Observed: make([]float64, n),
		Sigma:    make([]float64, n),
	}
	profiles := make([]*core.Profile, n)
	for i, key := range pkg.Members {
		prof, err := store.MustGet(key)
		if err != nil {
			return Result{}, fmt.Errorf("package %s: %w", pkg.ID, err)
		}
		if !prof.HasChannel(opts.Channel) {
			return Result{}, fmt.Errorf("package %s member %s: %w", pkg.ID, key, core.ErrMissingChannel)
		}
		head := prof.Head(opts.Channel, opts.Samples)
		if len(head) == 0 {
			return Result{}, fmt.Errorf("package %s member %s: %w", pkg.ID, key, core.ErrEmptyProfile)
		}
		profiles[i] = prof
		res.Observed[i] = stat.Mean(head, nil)
		res.Sigma[i] = math.NaN()
		if len(head) > 1 {
			res.Sigma[i] = stat.StdDev(head, nil)
		}
	}

	coeffs, err := polyfit(res.Observed, p)
	if err != nil {
		return Result{}, fmt.Errorf("package %s: %w", pkg.ID, err)
	}
	res.Coeffs = coeffs
	res.Curve = make([]float64, n)
	res.Residuals = make([]float64, n)
	for i := range res.Observed {
		res.Curve[i] = polyval(coeffs, float64(i))
		res.Residuals[i] = res.Observed[i] - res.Curve[i]
	}
	res.ReducedChiSq, res.Weighted = reducedChiSq(res.Residuals, res.Sigma, p)

	res.Reference = opts.Kind.defaultReference(n)
	if opts.Reference != nil {
		res.Reference = *opts.Reference
	}
	res.ReferenceValue = polyval(coeffs, res.Reference)

	res.Corrections = make([]float64, n)
	res.Corrected = make([]float64, n)
	res.Profiles = make([]*core.Profile, n)
	for i, prof := range profiles {
		corr := res.ReferenceValue - res.Observed[i] - coeffs[0]
		if opts.Method == Trend {
			corr = res.ReferenceValue - res.Curve[i]
		}
		res.Corrections[i] = corr
		res.Corrected[i] = res.Observed[i] + corr

		values := prof.Channel(opts.Channel)
		shifted := make([]float64, len(values))
		for j, v := range values {
			shifted[j] = v + corr
		}
		out, err := prof.WithChannel(opts.Channel, shifted)
		if err != nil {
			return Result{}, err
		}
		res.Profiles[i] = out
	}

	slog.Debug("drift correction",
		"package", pkg.ID, "kind", opts.Kind.String(), "method", opts.Method.String(), "profiles", n,
		"coeffs", coeffs, "reduced_chi2", res.ReducedChiSq)
	return res, nil
}

// polyfit returns least-squares coefficients c[0] + c[1]·x + ... of degree
// p-1 for y sampled at x = 0, 1, ..., n-1.
func polyfit(y []float64, p int) ([]float64, error) {
	n := len(y)
	a := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		x := 1.0
		for j := 0; j < p; j++ {
			a.Set(i, j, x)
			x *= float64(i)
		}
	}

	var c mat.VecDense
	if err := c.SolveVec(a, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("drift regression: %w", err)
	}
	return mat.Col(nil, 0, &c), nil
}

func polyval(c []float64, x float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// reducedChiSq returns Σ(r/σ)²/(n-p), or the unweighted Σr²/(n-p) when any σ
// is zero or undefined.
func reducedChiSq(res, sigma []float64, p int) (float64, bool) {
	dof := len(res) - p
	if dof <= 0 {
		return math.NaN(), false
	}

	weighted := true
	for _, s := range sigma {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			weighted = false
			break
		}
	}

	var sum float64
	for i, r := range res {
		if weighted {
			r /= sigma[i]
		}
		sum += r * r
	}
	return sum / float64(dof), weighted
}
