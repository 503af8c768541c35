// Package filter provides profile trimming and outlier removal applied before
// a (re-)fit
package filter

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// Config holds filtering configuration. The zero value keeps every sample.
type Config struct {
	MinDepth  *float64  // drop samples shallower than this (nil = no limit)
	MaxDepth  *float64  // drop samples deeper than this (nil = no limit)
	Outliers  []float64 // for each depth, drop the nearest sample
	Channel   string    // channel checked by DropNaN, defaults to signal
	DropNaN   bool      // drop samples whose channel value is not finite
	MinPoints int       // minimum samples that must survive (0 = 1)
}

// IsZero reports whether the config leaves a profile unchanged.
func (c *Config) IsZero() bool {
	return c == nil || (c.MinDepth == nil && c.MaxDepth == nil && len(c.Outliers) == 0 && !c.DropNaN)
}

// Apply returns a filtered copy of the profile; p itself is not modified.
func (c *Config) Apply(p *core.Profile) (*core.Profile, error) {
	if c.IsZero() {
		return p, nil
	}

	keep := make([]bool, p.Len())
	for i := range keep {
		keep[i] = true
	}

	// Crop by depth range first
	if c.MinDepth != nil || c.MaxDepth != nil {
		c.filterByDepth(p, keep)
	}

	// Remove manually selected outliers
	if len(c.Outliers) > 0 {
		c.removeOutliers(p, keep)
	}

	if c.DropNaN {
		c.filterNonFinite(p, keep)
	}

	out := subset(p, keep)

	minPoints := c.MinPoints
	if minPoints <= 0 {
		minPoints = 1
	}
	if out.Len() < minPoints {
		return nil, fmt.Errorf("profile %s: %d samples left after filtering, need %d: %w",
			p.Key, out.Len(), minPoints, core.ErrEmptyProfile)
	}
	return out, nil
}

// filterByDepth keeps samples inside [MinDepth, MaxDepth]
func (c *Config) filterByDepth(p *core.Profile, keep []bool) {
	for i, d := range p.Depths {
		if c.MinDepth != nil && d < *c.MinDepth {
			keep[i] = false
		}
		if c.MaxDepth != nil && d > *c.MaxDepth {
			keep[i] = false
		}
	}
}

// removeOutliers drops, for each outlier depth, the nearest sample still kept
func (c *Config) removeOutliers(p *core.Profile, keep []bool) {
	for _, target := range c.Outliers {
		best := -1
		bestDist := math.Inf(1)
		for i, d := range p.Depths {
			if !keep[i] {
				continue
			}
			if dist := math.Abs(d - target); dist < bestDist {
				best, bestDist = i, dist
			}
		}
		if best >= 0 {
			keep[best] = false
		}
	}
}

// filterNonFinite drops samples with NaN or infinite channel values
func (c *Config) filterNonFinite(p *core.Profile, keep []bool) {
	channel := c.Channel
	if channel == "" {
		channel = core.ChannelSignal
	}
	for i, v := range p.Channel(channel) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			keep[i] = false
		}
	}
}

func subset(p *core.Profile, keep []bool) *core.Profile {
	out := &core.Profile{
		Key:      p.Key,
		Analyte:  p.Analyte,
		Channels: make(map[string][]float64, len(p.Channels)),
	}
	for i, d := range p.Depths {
		if keep[i] {
			out.Depths = append(out.Depths, d)
		}
	}
	for name, values := range p.Channels {
		var kept []float64
		for i, v := range values {
			if keep[i] {
				kept = append(kept, v)
			}
		}
		out.Channels[name] = kept
	}
	return out
}

// Crop returns a copy of p restricted to [lo, hi].
func Crop(p *core.Profile, lo, hi float64) (*core.Profile, error) {
	c := &Config{MinDepth: &lo, MaxDepth: &hi}
	return c.Apply(p)
}

// NearestDepths returns the profile depths closest to each requested depth,
// sorted and without duplicates. It is used to turn clicked positions into
// outlier selections.
func NearestDepths(p *core.Profile, targets []float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, t := range targets {
		idx := sort.SearchFloat64s(p.Depths, t)
		best := -1
		for _, i := range []int{idx - 1, idx} {
			if i < 0 || i >= p.Len() {
				continue
			}
			if best < 0 || math.Abs(p.Depths[i]-t) < math.Abs(p.Depths[best]-t) {
				best = i
			}
		}
		if best >= 0 && !seen[p.Depths[best]] {
			seen[p.Depths[best]] = true
			out = append(out, p.Depths[best])
		}
	}
	sort.Float64s(out)
	return out
}
