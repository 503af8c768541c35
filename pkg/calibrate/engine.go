package calibrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// Scope says which anchors calibrate which cores.
type Scope int

// Calibration scopes
const (
	ScopePerCore    Scope = iota // every core uses its own anchors
	ScopeSingleCore              // one reference core calibrates every core
	ScopeExternal                // externally supplied map for every core
)

func (s Scope) String() string {
	switch s {
	case ScopePerCore:
		return "per-core"
	case ScopeSingleCore:
		return "single-core"
	case ScopeExternal:
		return "external"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope parses a scope name as written by Scope.String.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per-core", "percore", "core":
		return ScopePerCore, nil
	case "single-core", "singlecore", "single", "all":
		return ScopeSingleCore, nil
	case "external":
		return ScopeExternal, nil
	default:
		return 0, fmt.Errorf("unknown calibration scope '%s', must be per-core, single-core or external", s)
	}
}

// Mode is the user-selected calibration mode.
type Mode struct {
	Scope     Scope
	Reference string      // reference core for ScopeSingleCore
	External  Calibration // map for ScopeExternal
}

// Engine estimates anchors and derives calibrations over a store.
type Engine struct {
	Anchors AnchorOptions
	Bounds  Bounds
	Unit    string
	Channel string // channel the anchors are taken from, defaults to signal
}

// Set is the result of calibrating a store: one calibration per core, all
// tagged with the mode that produced them.
type Set struct {
	Mode    Mode
	ByCore  map[string]Calibration
	Anchors map[string]Anchors // core-level anchors that were estimated
}

// Calibrate derives calibrations for every core in the store according to the
// mode. Cores that cannot be calibrated are reported in the returned
// failures and left out of the set; other cores are still processed.
func (e *Engine) Calibrate(store *core.Store, mode Mode) (Set, core.Failures) {
	var fails core.Failures
	set := Set{
		Mode:    mode,
		ByCore:  make(map[string]Calibration),
		Anchors: make(map[string]Anchors),
	}
	cores := store.Cores()

	switch mode.Scope {
	case ScopePerCore:
		for _, c := range cores {
			a, ok := e.coreAnchors(store, c, &fails)
			if !ok {
				continue
			}
			set.Anchors[c] = a
			cal, err := TwoPoint(a, e.Bounds, e.Unit)
			if err != nil {
				fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: c}, err)
				continue
			}
			cal.Scope = ScopePerCore
			set.ByCore[c] = cal
		}

	case ScopeSingleCore:
		if len(store.Samples(mode.Reference)) == 0 {
			err := fmt.Errorf("reference core %q: %w", mode.Reference, core.ErrNotFound)
			for _, c := range cores {
				fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: c}, err)
			}
			return set, fails
		}
		a, ok := e.coreAnchors(store, mode.Reference, &fails)
		if !ok {
			return set, fails
		}
		set.Anchors[mode.Reference] = a
		cal, err := TwoPoint(a, e.Bounds, e.Unit)
		if err != nil {
			for _, c := range cores {
				fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: c}, err)
			}
			return set, fails
		}
		cal.Scope = ScopeSingleCore
		for _, c := range cores {
			set.ByCore[c] = cal
		}

	case ScopeExternal:
		cal := mode.External
		if cal.Slope == 0 {
			err := fmt.Errorf("external calibration has zero slope: %w", core.ErrDegenerateAnchors)
			for _, c := range cores {
				fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: c}, err)
			}
			return set, fails
		}
		cal.Scope = ScopeExternal
		cal.Type = TypeExternal
		for _, c := range cores {
			set.ByCore[c] = cal
		}

	default:
		err := fmt.Errorf("unsupported calibration scope %v", mode.Scope)
		for _, c := range cores {
			fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: c}, err)
		}
	}

	return set, fails
}

// coreAnchors estimates anchors for every profile of a core and combines them.
func (e *Engine) coreAnchors(store *core.Store, coreName string, fails *core.Failures) (Anchors, bool) {
	channel := e.Channel
	if channel == "" {
		channel = core.ChannelSignal
	}

	var samples []Anchors
	for _, id := range store.Samples(coreName) {
		key := core.SampleKey{Core: coreName, Sample: id}
		p, ok := store.Get(key)
		if !ok {
			continue
		}
		a, err := EstimateAnchors(p, channel, e.Anchors)
		if err != nil {
			fails.Add(core.KindInput, "anchors", key, err)
			continue
		}
		if a.Low.Defaulted {
			fails.Add(core.KindNumeric, "anchors", key, errors.New("low plateau mean was NaN, replaced by 0"))
		}
		samples = append(samples, a)
	}

	a, err := Combine(coreName, samples)
	if err != nil {
		fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: coreName}, err)
		return Anchors{}, false
	}
	slog.Debug("core anchors",
		"core", coreName, "high", a.High.Mean, "low", a.Low.Mean, "profiles", len(samples))
	return a, true
}

// Apply calibrates a profile with the calibration of its core.
func (s Set) Apply(p *core.Profile) (*core.Profile, error) {
	cal, ok := s.ByCore[p.Key.Core]
	if !ok {
		return nil, fmt.Errorf("no calibration for core %s: %w", p.Key.Core, core.ErrNotFound)
	}
	return cal.Apply(p)
}
