package penetration

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Exclusions is the per-core set of samples left out of the core averages.
// The set is owned by whoever toggles it; Summarize only reads it.
type Exclusions struct {
	mu    sync.RWMutex
	cores map[string]map[string]bool
}

// NewExclusions creates an empty exclusion set
func NewExclusions() *Exclusions {
	return &Exclusions{cores: make(map[string]map[string]bool)}
}

// Set marks a sample as excluded or included.
func (e *Exclusions) Set(core, sample string, excluded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !excluded {
		delete(e.cores[core], sample)
		return
	}
	if e.cores[core] == nil {
		e.cores[core] = make(map[string]bool)
	}
	e.cores[core][sample] = true
}

// Toggle flips the exclusion of a sample and returns the new state.
func (e *Exclusions) Toggle(core, sample string) bool {
	next := !e.Excluded(core, sample)
	e.Set(core, sample, next)
	return next
}

// Excluded reports whether a sample is excluded. A nil set excludes nothing.
func (e *Exclusions) Excluded(core, sample string) bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cores[core][sample]
}

// List returns the excluded samples of a core in sorted order.
func (e *Exclusions) List(core string) []string {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	for s := range e.cores[core] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Row is one sample line of a core summary.
type Row struct {
	Sample        string
	Found         bool
	Excluded      bool
	Depth         float64
	Concentration float64
}

// Summary aggregates penetration results of one core.
type Summary struct {
	Core      string
	Threshold float64
	N         int // samples contributing to the statistics
	DepthMean float64
	DepthStd  float64
	ConcMean  float64
	ConcStd   float64
	Rows      []Row
}

// Summarize computes mean and standard deviation of penetration depth and
// concentration over the samples of one core that found a crossing and are
// not excluded. It is a pure function of its inputs, so calling it again
// after the exclusions or results change gives the updated statistics.
func Summarize(coreName string, results []Result, ex *Exclusions) Summary {
	s := Summary{
		Core:      coreName,
		DepthMean: math.NaN(),
		DepthStd:  math.NaN(),
		ConcMean:  math.NaN(),
		ConcStd:   math.NaN(),
	}

	var depths, concs []float64
	for _, r := range results {
		if r.Key.Core != coreName {
			continue
		}
		s.Threshold = r.Threshold
		row := Row{
			Sample:        r.Key.Sample,
			Found:         r.Found,
			Excluded:      ex.Excluded(coreName, r.Key.Sample),
			Depth:         r.Depth,
			Concentration: r.Concentration,
		}
		s.Rows = append(s.Rows, row)
		if row.Found && !row.Excluded {
			depths = append(depths, r.Depth)
			concs = append(concs, r.Concentration)
		}
	}
	sort.Slice(s.Rows, func(i, j int) bool { return s.Rows[i].Sample < s.Rows[j].Sample })

	s.N = len(depths)
	switch s.N {
	case 0:
	case 1:
		s.DepthMean, s.DepthStd = depths[0], 0
		s.ConcMean, s.ConcStd = concs[0], 0
	default:
		s.DepthMean, s.DepthStd = stat.MeanStdDev(depths, nil)
		s.ConcMean, s.ConcStd = stat.MeanStdDev(concs, nil)
	}
	return s
}

// SummarizeAll summarises every core present in results, sorted by core.
func SummarizeAll(results []Result, ex *Exclusions) []Summary {
	seen := make(map[string]bool)
	var cores []string
	for _, r := range results {
		if !seen[r.Key.Core] {
			seen[r.Key.Core] = true
			cores = append(cores, r.Key.Core)
		}
	}
	sort.Strings(cores)

	out := make([]Summary, len(cores))
	for i, c := range cores {
		out[i] = Summarize(c, results, ex)
	}
	return out
}
