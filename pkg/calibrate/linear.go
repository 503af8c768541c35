package calibrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// Calibration type labels
const (
	TypeTwoPoint = "two-point"
	TypeExternal = "external"
)

// AnchorPoint pairs a measured signal with its known physical value.
type AnchorPoint struct {
	Measured float64
	Physical float64
}

// Bounds are the physical values assigned to the high and low plateaus,
// typically 100 % saturation and zero.
type Bounds struct {
	High float64
	Low  float64
}

// Calibration maps raw signal to concentration:
//
//	concentration = Slope·signal + Intercept
type Calibration struct {
	Slope     float64
	Intercept float64
	Unit      string
	Type      string
	Scope     Scope
	Reference string // core whose anchors defined the map
	Points    []AnchorPoint
}

// LinearCalibrate fits a straight line through the (measured, physical)
// correspondences by ordinary least squares. With two points this is the
// exact two-point solution. Identical measured values fail with
// core.ErrDegenerateAnchors.
func LinearCalibrate(points []AnchorPoint, unit string) (Calibration, error) {
	if len(points) < 2 {
		return Calibration{}, fmt.Errorf("need at least 2 anchor points, got %d: %w", len(points), core.ErrDegenerateAnchors)
	}

	x := make([]float64, len(points))
	y := make([]float64, len(points))
	distinct := false
	for i, p := range points {
		if math.IsNaN(p.Measured) || math.IsInf(p.Measured, 0) || math.IsNaN(p.Physical) || math.IsInf(p.Physical, 0) {
			return Calibration{}, fmt.Errorf("anchor point %d is not finite: %w", i, core.ErrDegenerateAnchors)
		}
		x[i], y[i] = p.Measured, p.Physical
		if x[i] != x[0] {
			distinct = true
		}
	}
	if !distinct {
		return Calibration{}, fmt.Errorf("all anchors measured at %g: %w", x[0], core.ErrDegenerateAnchors)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return Calibration{
		Slope:     slope,
		Intercept: intercept,
		Unit:      unit,
		Type:      TypeTwoPoint,
		Points:    append([]AnchorPoint(nil), points...),
	}, nil
}

// TwoPoint calibrates from plateau anchors and their physical bounds.
func TwoPoint(a Anchors, b Bounds, unit string) (Calibration, error) {
	cal, err := LinearCalibrate([]AnchorPoint{
		{Measured: a.High.Mean, Physical: b.High},
		{Measured: a.Low.Mean, Physical: b.Low},
	}, unit)
	if err != nil {
		return cal, fmt.Errorf("calibrate %s: %w", a.Key, err)
	}
	cal.Reference = a.Key.Core
	return cal, nil
}

// External wraps an externally determined linear map.
func External(slope, intercept float64, unit string) (Calibration, error) {
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) || math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return Calibration{}, fmt.Errorf("external calibration slope=%g intercept=%g: %w", slope, intercept, core.ErrDegenerateAnchors)
	}
	return Calibration{
		Slope:     slope,
		Intercept: intercept,
		Unit:      unit,
		Type:      TypeExternal,
		Scope:     ScopeExternal,
	}, nil
}

// Convert maps one signal value to concentration.
func (c Calibration) Convert(signal float64) float64 {
	return c.Slope*signal + c.Intercept
}

// Invert maps a concentration back to the signal that produces it.
func (c Calibration) Invert(concentration float64) float64 {
	return (concentration - c.Intercept) / c.Slope
}

// Apply returns a copy of the profile with a concentration channel computed
// from the signal channel.
func (c Calibration) Apply(p *core.Profile) (*core.Profile, error) {
	signal := p.Channel(core.ChannelSignal)
	if signal == nil {
		return nil, fmt.Errorf("apply calibration to %s: %w", p.Key, core.ErrMissingChannel)
	}
	conc := make([]float64, len(signal))
	for i, v := range signal {
		conc[i] = c.Convert(v)
	}
	return p.WithChannel(core.ChannelConcentration, conc)
}
