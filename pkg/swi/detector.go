// Package swi locates the sediment-water interface in a raw profile and
// re-indexes the profile so that the interface sits at depth zero.
package swi

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/filter"
	"github.com/ChrisMcGann/SedKey/pkg/sigmoid"
)

// State is the last stage a detection reached.
type State int

// Detection stages
const (
	Fitting State = iota
	InflectionCheck
	Aligned
)

func (s State) String() string {
	switch s {
	case Fitting:
		return "fitting"
	case InflectionCheck:
		return "inflection-check"
	case Aligned:
		return "aligned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WarnNotInflection is attached to a Result whose candidate interface is not
// confirmed by the second derivative.
const WarnNotInflection = "candidate may not be a true inflection"

// Options controls interface detection.
type Options struct {
	Fit     sigmoid.Options
	Channel string // channel to fit, defaults to core.ChannelSignal
	Window  int    // ± grid steps searched for the second-derivative minimum
}

// DefaultOptions returns the detection options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Fit:     sigmoid.DefaultOptions(),
		Channel: core.ChannelSignal,
		Window:  2,
	}
}

// Result is the outcome of one detection.
type Result struct {
	Key      core.SampleKey
	State    State
	Found    bool
	Depth    float64 // interface depth in the original depth index, NaN if not found
	Fit      sigmoid.FitResult
	Warnings []string
	Profile  *core.Profile // aligned profile, or the input unchanged when not found
}

// Detector finds sediment-water interfaces.
type Detector struct {
	opts Options
}

// NewDetector creates a detector; zero option fields take their defaults.
func NewDetector(opts Options) *Detector {
	def := DefaultOptions()
	if opts.Channel == "" {
		opts.Channel = def.Channel
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Fit.Step <= 0 {
		opts.Fit.Step = def.Fit.Step
	}
	if opts.Fit.SeedB == 0 && opts.Fit.SeedC == 0 {
		opts.Fit.SeedB, opts.Fit.SeedC = def.Fit.SeedB, def.Fit.SeedC
	}
	return &Detector{opts: opts}
}

// Options returns the effective options.
func (d *Detector) Options() Options {
	return d.opts
}

// Detect runs Fitting -> InflectionCheck -> Aligned on a profile. The input
// profile is never modified. An invalid fit stops in the Fitting state with
// Found == false and the profile returned unchanged.
func (d *Detector) Detect(p *core.Profile) Result {
	res := Result{
		Key:     p.Key,
		State:   Fitting,
		Depth:   math.NaN(),
		Profile: p,
	}

	if !p.HasChannel(d.opts.Channel) {
		res.Fit = sigmoid.FitResult{Reason: fmt.Sprintf("missing channel %q", d.opts.Channel), Shift: math.NaN()}
		return res
	}

	depths, values := p.Finite(d.opts.Channel)
	res.Fit = sigmoid.Fit(depths, values, sigmoid.FourParam, d.opts.Fit)
	if !res.Fit.Valid {
		slog.Debug("no interface found", "profile", p.Key.String(), "reason", res.Fit.Reason)
		return res
	}

	res.State = InflectionCheck
	candidate := res.Fit.ShiftIndex()
	if !IsInflection(res.Fit.D2, candidate, d.opts.Window) {
		res.Warnings = append(res.Warnings, WarnNotInflection)
		slog.Warn(WarnNotInflection, "profile", p.Key.String(), "depth", res.Fit.Shift)
	}

	res.State = Aligned
	res.Found = true
	res.Depth = res.Fit.Shift
	res.Profile = p.Shifted(res.Depth)
	return res
}

// Refit detects the interface on a trimmed / outlier-filtered copy of p and
// aligns the full, unfiltered profile with the result. The same profile and
// filter always give the same interface depth.
func (d *Detector) Refit(p *core.Profile, f *filter.Config) (Result, error) {
	trimmed, err := f.Apply(p)
	if err != nil {
		return Result{Key: p.Key, Depth: math.NaN(), Profile: p}, err
	}

	res := d.Detect(trimmed)
	if res.Found {
		res.Profile = p.Shifted(res.Depth)
	} else {
		res.Profile = p
	}
	return res, nil
}

// Err returns the detection failure as an error, or nil when an interface
// was found.
func (r Result) Err() error {
	if r.Found {
		return nil
	}
	if r.Fit.Reason != "" {
		return fmt.Errorf("%w: %s", core.ErrNoInterface, r.Fit.Reason)
	}
	return core.ErrNoInterface
}

// IsInflection reports whether the minimum of |d2| within ±window indices of
// candidate lies on the candidate or an adjacent index.
func IsInflection(d2 []float64, candidate, window int) bool {
	if candidate < 0 || candidate >= len(d2) {
		return false
	}
	lo := candidate - window
	if lo < 0 {
		lo = 0
	}
	hi := candidate + window
	if hi > len(d2)-1 {
		hi = len(d2) - 1
	}

	best := lo
	for i := lo + 1; i <= hi; i++ {
		if math.Abs(d2[i]) < math.Abs(d2[best]) {
			best = i
		}
	}
	diff := best - candidate
	return diff >= -1 && diff <= 1
}
