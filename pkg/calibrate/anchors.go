// Package calibrate converts interface-aligned raw signal into physical
// concentration with a linear map derived from signal plateaus.
package calibrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// AnchorOptions controls plateau estimation. Window and the fallbacks are in
// depth units.
type AnchorOptions struct {
	Window       float64 // ± neighbourhood around the extreme sample
	HighFallback float64 // widened window for the maximum-signal plateau
	LowFallback  float64 // widened window for the minimum-signal plateau
	MinPoints    int     // below this many samples the window is widened
}

// DefaultAnchorOptions returns the plateau estimation defaults.
func DefaultAnchorOptions() AnchorOptions {
	return AnchorOptions{
		Window:       100,
		HighFallback: 200,
		LowFallback:  50,
		MinPoints:    3,
	}
}

// Anchor summarises one signal plateau.
type Anchor struct {
	Depth     float64 // depth of the extreme sample
	Mean      float64
	Std       float64
	N         int
	Window    float64 // window actually used
	Widened   bool    // fallback window was applied (it may be narrower)
	Defaulted bool    // mean was NaN and replaced by 0
}

// Anchors holds the maximum- and minimum-signal plateaus of a profile or core.
type Anchors struct {
	Key  core.SampleKey // Sample is empty for core-level anchors
	High Anchor
	Low  Anchor
}

// EstimateAnchors locates the absolute maximum and minimum of a channel and
// averages the samples within ±Window depth of each. When fewer than
// MinPoints samples fall inside, the mean is recomputed over the high or low
// fallback window instead, even when the fallback is the narrower one. A NaN
// low-plateau mean is replaced by 0.
func EstimateAnchors(p *core.Profile, channel string, opts AnchorOptions) (Anchors, error) {
	opts = withAnchorDefaults(opts)
	res := Anchors{Key: p.Key}

	if !p.HasChannel(channel) {
		return res, fmt.Errorf("anchors %s: channel %q: %w", p.Key, channel, core.ErrMissingChannel)
	}
	depths, values := p.Finite(channel)
	if len(values) == 0 {
		return res, fmt.Errorf("anchors %s: %w", p.Key, core.ErrEmptyProfile)
	}

	res.High = plateau(depths, values, floats.MaxIdx(values), opts.Window, opts.HighFallback, opts.MinPoints)
	res.Low = plateau(depths, values, floats.MinIdx(values), opts.Window, opts.LowFallback, opts.MinPoints)

	if math.IsNaN(res.High.Mean) {
		return res, fmt.Errorf("anchors %s: high plateau is NaN: %w", p.Key, core.ErrDegenerateAnchors)
	}
	if math.IsNaN(res.Low.Mean) {
		res.Low.Mean = 0
		res.Low.Defaulted = true
	}
	return res, nil
}

func withAnchorDefaults(opts AnchorOptions) AnchorOptions {
	def := DefaultAnchorOptions()
	if opts.Window < 0 {
		opts.Window = 0
	}
	if opts.HighFallback <= 0 {
		opts.HighFallback = def.HighFallback
	}
	if opts.LowFallback <= 0 {
		opts.LowFallback = def.LowFallback
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = def.MinPoints
	}
	return opts
}

func plateau(depths, values []float64, center int, window, fallback float64, minPoints int) Anchor {
	a := Anchor{Depth: depths[center], Window: window}
	sel := neighbourhood(depths, values, depths[center], window)
	if len(sel) < minPoints {
		a.Window = fallback
		a.Widened = true
		sel = neighbourhood(depths, values, depths[center], fallback)
	}

	a.N = len(sel)
	if a.N == 0 {
		a.Mean = math.NaN()
		a.Std = math.NaN()
		return a
	}
	if a.N == 1 {
		a.Mean = sel[0]
		return a
	}
	a.Mean, a.Std = stat.MeanStdDev(sel, nil)
	return a
}

func neighbourhood(depths, values []float64, center, window float64) []float64 {
	var sel []float64
	for i, d := range depths {
		if math.Abs(d-center) <= window {
			sel = append(sel, values[i])
		}
	}
	return sel
}

// Combine merges per-profile anchors of one core into a core-level anchor
// pair: the plateau means are averaged and the spread of those means is
// reported as the standard deviation.
func Combine(coreName string, samples []Anchors) (Anchors, error) {
	if len(samples) == 0 {
		return Anchors{}, fmt.Errorf("anchors %s: %w", coreName, core.ErrEmptyProfile)
	}
	out := Anchors{Key: core.SampleKey{Core: coreName}}
	out.High = combine(samples, func(a Anchors) Anchor { return a.High })
	out.Low = combine(samples, func(a Anchors) Anchor { return a.Low })
	return out, nil
}

func combine(samples []Anchors, get func(Anchors) Anchor) Anchor {
	means := make([]float64, len(samples))
	var out Anchor
	for i, s := range samples {
		a := get(s)
		means[i] = a.Mean
		out.N += a.N
		out.Widened = out.Widened || a.Widened
		out.Defaulted = out.Defaulted || a.Defaulted
		if a.Window > out.Window {
			out.Window = a.Window
		}
	}
	out.Depth = math.NaN()
	if len(samples) == 1 {
		one := get(samples[0])
		out.Depth = one.Depth
		out.Mean, out.Std = one.Mean, one.Std
		return out
	}
	out.Mean, out.Std = stat.MeanStdDev(means, nil)
	return out
}
