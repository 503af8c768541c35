// Package core provides the in-memory representation of microsensor depth
// profiles and the profile store shared by the analysis pipeline.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Well-known channel names
const (
	ChannelSignal        = "signal"        // raw sensor signal, mV
	ChannelConcentration = "concentration" // calibrated physical unit
)

// SampleKey identifies one profile: a sample measured in a core (group).
type SampleKey struct {
	Core   string
	Sample string
}

// String returns the key in format "core/sample"
func (k SampleKey) String() string {
	return fmt.Sprintf("%s/%s", k.Core, k.Sample)
}

// Profile is a depth-ordered series of one or more signal channels.
//
// Depths are strictly increasing. A Profile is treated as immutable once it
// has been handed out: every transformation returns a new Profile.
type Profile struct {
	Key      SampleKey
	Analyte  string
	Depths   []float64            // µm, strictly increasing
	Channels map[string][]float64 // one value per depth
}

// NewProfile builds a profile from unsorted depth/signal pairs. Samples are
// sorted by depth and duplicate depths are dropped (first occurrence wins).
func NewProfile(key SampleKey, analyte string, depths, signal []float64) (*Profile, error) {
	if len(depths) != len(signal) {
		return nil, &ValidationError{
			Field:   "Profile",
			Message: fmt.Sprintf("%d depths but %d signal values", len(depths), len(signal)),
		}
	}

	p := &Profile{
		Key:      key,
		Analyte:  analyte,
		Depths:   append([]float64(nil), depths...),
		Channels: map[string][]float64{ChannelSignal: append([]float64(nil), signal...)},
	}
	p.normalize()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// normalize sorts by depth and removes duplicate depths in place
func (p *Profile) normalize() {
	idx := make([]int, len(p.Depths))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return p.Depths[idx[i]] < p.Depths[idx[j]]
	})

	keep := make([]int, 0, len(idx))
	for _, i := range idx {
		if len(keep) > 0 && p.Depths[keep[len(keep)-1]] == p.Depths[i] {
			continue
		}
		keep = append(keep, i)
	}

	p.Depths = pick(p.Depths, keep)
	for name, values := range p.Channels {
		p.Channels[name] = pick(values, keep)
	}
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

// Validate checks that a profile meets all requirements for processing.
func (p *Profile) Validate() error {
	var errs []string

	if len(p.Depths) == 0 {
		errs = append(errs, "at least one depth is required")
	}
	for i, d := range p.Depths {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			errs = append(errs, fmt.Sprintf("depth %d is not finite", i))
		}
	}
	if !p.IsSorted() {
		errs = append(errs, "depths must be strictly increasing")
	}
	for name, values := range p.Channels {
		if len(values) != len(p.Depths) {
			errs = append(errs, fmt.Sprintf("channel %s has %d values for %d depths", name, len(values), len(p.Depths)))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Profile " + p.Key.String(),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// IsSorted checks if depths are strictly increasing.
func (p *Profile) IsSorted() bool {
	for i := 1; i < len(p.Depths); i++ {
		if p.Depths[i] <= p.Depths[i-1] {
			return false
		}
	}
	return true
}

// Len returns the number of depth samples.
func (p *Profile) Len() int {
	return len(p.Depths)
}

// Channel returns the values of a channel, or nil if the channel is absent.
// The returned slice must not be modified.
func (p *Profile) Channel(name string) []float64 {
	return p.Channels[name]
}

// HasChannel reports whether the profile carries the named channel.
func (p *Profile) HasChannel(name string) bool {
	_, ok := p.Channels[name]
	return ok
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := &Profile{
		Key:      p.Key,
		Analyte:  p.Analyte,
		Depths:   append([]float64(nil), p.Depths...),
		Channels: make(map[string][]float64, len(p.Channels)),
	}
	for name, values := range p.Channels {
		c.Channels[name] = append([]float64(nil), values...)
	}
	return c
}

// WithChannel returns a copy of the profile with the named channel set.
func (p *Profile) WithChannel(name string, values []float64) (*Profile, error) {
	if len(values) != len(p.Depths) {
		return nil, &ValidationError{
			Field:   "Profile " + p.Key.String(),
			Message: fmt.Sprintf("channel %s has %d values for %d depths", name, len(values), len(p.Depths)),
		}
	}
	c := p.Clone()
	c.Channels[name] = append([]float64(nil), values...)
	return c, nil
}

// Shifted returns a copy of the profile with offset subtracted from every depth.
func (p *Profile) Shifted(offset float64) *Profile {
	c := p.Clone()
	for i := range c.Depths {
		c.Depths[i] -= offset
	}
	return c
}

// Finite returns the depths and channel values where the channel value is
// finite. Both slices are freshly allocated.
func (p *Profile) Finite(channel string) ([]float64, []float64) {
	values := p.Channels[channel]
	depths := make([]float64, 0, len(values))
	out := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		depths = append(depths, p.Depths[i])
		out = append(out, v)
	}
	return depths, out
}

// Head returns up to n leading values of a channel (shallowest first).
func (p *Profile) Head(channel string, n int) []float64 {
	values := p.Channels[channel]
	if n > len(values) {
		n = len(values)
	}
	return append([]float64(nil), values[:n]...)
}

// Tail returns up to n trailing values of a channel (deepest last).
func (p *Profile) Tail(channel string, n int) []float64 {
	values := p.Channels[channel]
	if n > len(values) {
		n = len(values)
	}
	return append([]float64(nil), values[len(values)-n:]...)
}
