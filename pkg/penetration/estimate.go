// Package penetration estimates the depth at which an analyte's calibrated
// concentration falls below a threshold, and aggregates it per core.
package penetration

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/sigmoid"
)

// Options controls the re-fit used for threshold scanning.
type Options struct {
	Fit             sigmoid.Options
	Channel         string // defaults to core.ChannelConcentration
	BaselineSamples int    // deepest samples averaged as background, default 3
}

// DefaultOptions returns the estimator defaults.
func DefaultOptions() Options {
	return Options{
		Fit:             sigmoid.DefaultOptions(),
		Channel:         core.ChannelConcentration,
		BaselineSamples: 3,
	}
}

// Result is the penetration estimate for one profile. Depth and
// Concentration are NaN when no crossing exists.
type Result struct {
	Key           core.SampleKey
	Threshold     float64
	Found         bool
	Depth         float64
	Concentration float64 // fitted, background-corrected value at Depth
	Baseline      float64 // background subtracted before fitting
	Fit           sigmoid.FitResult
}

// Estimate re-baselines a calibrated profile on its deepest samples, re-fits
// the three-parameter model and scans the fitted curve from the shallowest
// depth downwards for the first value below threshold. The curve must have
// been at or above the threshold before the crossing.
func Estimate(p *core.Profile, threshold float64, opts Options) Result {
	opts = withDefaults(opts)
	res := Result{
		Key:           p.Key,
		Threshold:     threshold,
		Depth:         math.NaN(),
		Concentration: math.NaN(),
		Baseline:      math.NaN(),
	}

	depths, values := p.Finite(opts.Channel)
	if len(values) < sigmoid.MinPoints {
		res.Fit = sigmoid.Fit(depths, values, sigmoid.ThreeParam, opts.Fit)
		return res
	}

	nb := opts.BaselineSamples
	if nb > len(values) {
		nb = len(values)
	}
	res.Baseline = stat.Mean(values[len(values)-nb:], nil)

	shifted := make([]float64, len(values))
	for i, v := range values {
		shifted[i] = v - res.Baseline
	}
	res.Fit = sigmoid.Fit(depths, shifted, sigmoid.ThreeParam, opts.Fit)
	if !res.Fit.Valid {
		slog.Debug("penetration fit invalid", "profile", p.Key.String(), "reason", res.Fit.Reason)
		return res
	}

	if i := Crossing(res.Fit.Curve, threshold); i >= 0 {
		res.Found = true
		res.Depth = res.Fit.Grid[i]
		res.Concentration = res.Fit.Curve[i]
	}
	return res
}

// Crossing returns the index of the first value below threshold that follows
// a value at or above it, or -1.
func Crossing(curve []float64, threshold float64) int {
	above := false
	for i, v := range curve {
		if v >= threshold {
			above = true
			continue
		}
		if above {
			return i
		}
	}
	return -1
}

// EstimateAll estimates every profile with the same threshold.
func EstimateAll(profiles []*core.Profile, threshold float64, opts Options) []Result {
	out := make([]Result, len(profiles))
	for i, p := range profiles {
		out[i] = Estimate(p, threshold, opts)
	}
	return out
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Channel == "" {
		opts.Channel = def.Channel
	}
	if opts.BaselineSamples <= 0 {
		opts.BaselineSamples = def.BaselineSamples
	}
	if opts.Fit.Step <= 0 {
		opts.Fit.Step = def.Fit.Step
	}
	if opts.Fit.SeedB == 0 && opts.Fit.SeedC == 0 {
		opts.Fit.SeedB, opts.Fit.SeedC = def.Fit.SeedB, def.Fit.SeedC
	}
	return opts
}
