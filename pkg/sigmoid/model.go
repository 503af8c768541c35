// Package sigmoid fits the monotonic Gompertz-type S-curve used to describe
// microsensor depth profiles:
//
//	y = a·(exp(−exp(b − c·x)) − 1) + d
//
// The three-parameter variant drops the offset d.
package sigmoid

import (
	"fmt"
	"math"
)

// Variant selects the model form.
type Variant int

// Model variants
const (
	ThreeParam Variant = 3 // a, b, c
	FourParam  Variant = 4 // a, b, c, d
)

func (v Variant) String() string {
	switch v {
	case ThreeParam:
		return "3-parameter"
	case FourParam:
		return "4-parameter"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// NumParams returns the number of free parameters of the variant.
func (v Variant) NumParams() int {
	return int(v)
}

// Params holds the model coefficients in raw depth/signal units.
type Params struct {
	A float64 // amplitude
	B float64 // shift
	C float64 // slope
	D float64 // vertical offset, zero for ThreeParam
}

// Eval evaluates the model at depth x.
func (p Params) Eval(x float64) float64 {
	return p.A*(math.Exp(-math.Exp(p.B-p.C*x))-1) + p.D
}

// Inflection returns the depth where b − c·x = 0, the analytic inflection
// point of the curve. NaN when the slope is zero.
func (p Params) Inflection() float64 {
	if p.C == 0 {
		return math.NaN()
	}
	return p.B / p.C
}

// Slice returns the parameters as a vector of length v.NumParams().
func (p Params) Slice(v Variant) []float64 {
	if v == ThreeParam {
		return []float64{p.A, p.B, p.C}
	}
	return []float64{p.A, p.B, p.C, p.D}
}

// basis is the non-linear part of the model without amplitude and offset
func basis(b, c, x float64) float64 {
	return math.Exp(-math.Exp(b-c*x)) - 1
}
