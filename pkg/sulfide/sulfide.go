// Package sulfide derives total dissolved sulfide from a calibrated H2S
// profile and its correlated pH profile.
package sulfide

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// Conditions are the in-situ conditions of the equilibrium constant.
type Conditions struct {
	TemperatureC float64
	Salinity     float64 // per mille
}

// Validate checks that the conditions are inside the range the K1
// polynomial was fitted for.
func (c Conditions) Validate() error {
	if math.IsNaN(c.TemperatureC) || c.TemperatureC < core.MinTemperatureC || c.TemperatureC > core.MaxTemperatureC {
		return &core.ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("%g °C outside [%g, %g]", c.TemperatureC, core.MinTemperatureC, core.MaxTemperatureC),
		}
	}
	if math.IsNaN(c.Salinity) || c.Salinity < 0 || c.Salinity > core.MaxSalinity {
		return &core.ValidationError{
			Field:   "salinity",
			Message: fmt.Sprintf("%g outside [0, %g]", c.Salinity, core.MaxSalinity),
		}
	}
	return nil
}

// PK1 returns the first dissociation constant of H2S as pK1 for a
// temperature in Kelvin and salinity in per mille.
func PK1(tempK, salinity float64) float64 {
	return -98.08 + 5765.4/tempK + 15.04555*math.Log(tempK) -
		0.157*math.Sqrt(salinity) + 0.0135*salinity
}

// K1 returns 10^(-pK1).
func K1(tempK, salinity float64) float64 {
	return math.Pow(10, -PK1(tempK, salinity))
}

// Total returns total sulfide H2S·(1 + K1/10^(-pH)) in the unit of h2s.
func Total(h2s, pH, k1 float64) float64 {
	return h2s * (1 + k1/core.PHToActivity(pH))
}

// Options selects the channels read from each profile.
type Options struct {
	H2SChannel string // default core.ChannelConcentration
	PHChannel  string // default core.ChannelConcentration
}

// Result holds aligned rows of one H2S/pH pair.
type Result struct {
	H2SKey       core.SampleKey
	PHKey        core.SampleKey
	Conditions   Conditions
	K1           float64
	Depths       []float64
	H2S          []float64
	PH           []float64
	Total        []float64 // signed
	TotalFloored []float64 // negative values replaced by 0
}

// Derive aligns the pair on a shared depth grid and computes total sulfide
// at every aligned depth.
func Derive(h2s, ph *core.Profile, cond Conditions, opts Options) (Result, error) {
	if opts.H2SChannel == "" {
		opts.H2SChannel = core.ChannelConcentration
	}
	if opts.PHChannel == "" {
		opts.PHChannel = core.ChannelConcentration
	}
	if err := cond.Validate(); err != nil {
		return Result{}, err
	}
	if !h2s.HasChannel(opts.H2SChannel) {
		return Result{}, fmt.Errorf("H2S profile %s has no %s channel: %w", h2s.Key, opts.H2SChannel, core.ErrMissingChannel)
	}
	if !ph.HasChannel(opts.PHChannel) {
		return Result{}, fmt.Errorf("pH profile %s has no %s channel: %w", ph.Key, opts.PHChannel, core.ErrMissingChannel)
	}

	hd, hv := h2s.Finite(opts.H2SChannel)
	pd, pv := ph.Finite(opts.PHChannel)
	depths, hs, phs, err := Align(hd, hv, pd, pv)
	if err != nil {
		return Result{}, fmt.Errorf("align %s with %s: %w", h2s.Key, ph.Key, err)
	}

	res := Result{
		H2SKey:     h2s.Key,
		PHKey:      ph.Key,
		Conditions: cond,
		K1:         K1(core.CelsiusToKelvin(cond.TemperatureC), cond.Salinity),
	}
	for i, d := range depths {
		t := Total(hs[i], phs[i], res.K1)
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		res.Depths = append(res.Depths, d)
		res.H2S = append(res.H2S, hs[i])
		res.PH = append(res.PH, phs[i])
		res.Total = append(res.Total, t)
		res.TotalFloored = append(res.TotalFloored, math.Max(t, 0))
	}
	if len(res.Depths) == 0 {
		return res, fmt.Errorf("no complete rows for %s: %w", h2s.Key, core.ErrEmptyProfile)
	}

	slog.Debug("total sulfide", "h2s", h2s.Key.String(), "ph", ph.Key.String(), "k1", res.K1, "rows", len(res.Depths))
	return res, nil
}

// Align resamples two depth series onto the union of their depths that lies
// inside the intersection of both ranges, interpolating linearly. Inputs
// must be sorted by depth and free of NaN.
func Align(ad, av, bd, bv []float64) ([]float64, []float64, []float64, error) {
	if len(ad) < 2 || len(bd) < 2 {
		return nil, nil, nil, fmt.Errorf("need at least 2 samples per profile: %w", core.ErrInsufficientPoints)
	}
	lo := math.Max(ad[0], bd[0])
	hi := math.Min(ad[len(ad)-1], bd[len(bd)-1])
	if lo > hi {
		return nil, nil, nil, fmt.Errorf("depth ranges [%g, %g] and [%g, %g] do not overlap: %w",
			ad[0], ad[len(ad)-1], bd[0], bd[len(bd)-1], core.ErrEmptyProfile)
	}

	var fa, fb interp.PiecewiseLinear
	if err := fa.Fit(ad, av); err != nil {
		return nil, nil, nil, err
	}
	if err := fb.Fit(bd, bv); err != nil {
		return nil, nil, nil, err
	}

	grid := unionWithin(ad, bd, lo, hi)
	a := make([]float64, len(grid))
	b := make([]float64, len(grid))
	for i, d := range grid {
		a[i] = fa.Predict(d)
		b[i] = fb.Predict(d)
	}
	return grid, a, b, nil
}

func unionWithin(a, b []float64, lo, hi float64) []float64 {
	seen := make(map[float64]bool, len(a)+len(b))
	var out []float64
	for _, s := range [][]float64{a, b} {
		for _, d := range s {
			if d < lo || d > hi || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Float64s(out)
	return out
}
