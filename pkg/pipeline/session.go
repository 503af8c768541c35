// Package pipeline runs the analysis stages over one analyte's profiles and
// owns the state the stages share: the profile store, the calibration mode,
// the exclusion set and the accumulated failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/config"
	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
	"github.com/ChrisMcGann/SedKey/pkg/filter"
	"github.com/ChrisMcGann/SedKey/pkg/penetration"
	"github.com/ChrisMcGann/SedKey/pkg/reader/meta"
	"github.com/ChrisMcGann/SedKey/pkg/sulfide"
	"github.com/ChrisMcGann/SedKey/pkg/swi"
)

// Stage names used in failures and logs
const (
	StageSWI         = "swi"
	StageCalibrate   = "calibrate"
	StagePenetration = "penetration"
	StageSulfide     = "sulfide"
	StageDrift       = "drift"
)

// Session is the pipeline state of one analyte. Raw holds the imported
// profiles (superseded only by drift correction), Store the current,
// progressively aligned and calibrated ones.
type Session struct {
	Analyte    core.Analyte
	Config     *config.Config
	Mode       calibrate.Mode
	Exclusions *penetration.Exclusions

	// OnProgress is called once per processed profile; it may be called
	// from several goroutines.
	OnProgress func(stage string)

	raw   *core.Store
	store *core.Store

	mu          sync.Mutex
	failures    core.Failures
	interfaces  map[core.SampleKey]swi.Result
	calibration calibrate.Set
	penetration []penetration.Result
}

// NewSession creates a session over an imported store. The store is not
// modified; the session works on its own snapshots.
func NewSession(cfg *config.Config, analyte core.Analyte, store *core.Store) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session needs a config: %w", core.ErrMissingInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	mode, err := cfg.CalibrationMode()
	if err != nil {
		return nil, err
	}
	return &Session{
		Analyte:    analyte,
		Config:     cfg,
		Mode:       mode,
		Exclusions: penetration.NewExclusions(),
		raw:        store.Snapshot(),
		store:      store.Snapshot(),
		interfaces: make(map[core.SampleKey]swi.Result),
	}, nil
}

// Store returns the current profiles.
func (s *Session) Store() *core.Store {
	return s.store
}

// Raw returns the imported profiles.
func (s *Session) Raw() *core.Store {
	return s.raw
}

// Failures returns a copy of the failures recorded so far.
func (s *Session) Failures() core.Failures {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out core.Failures
	out.Merge(s.failures)
	return out
}

func (s *Session) fail(kind core.FailureKind, stage string, key core.SampleKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures.Add(kind, stage, key, err)
}

func (s *Session) progress(stage string) {
	if s.OnProgress != nil {
		s.OnProgress(stage)
	}
}

// forEach runs fn for every key with at most Config.Workers goroutines (at
// least one) and returns the results in key order.
func forEach[T any](ctx context.Context, s *Session, stage string, keys []core.SampleKey, fn func(core.SampleKey) T) ([]T, error) {
	out := make([]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Config.Workers, 1))
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = fn(key)
			s.progress(stage)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DetectInterfaces locates the sediment-water interface of every raw profile
// and replaces the current profile with its aligned copy. Profiles without an
// interface keep their depth index and are recorded as quality failures.
func (s *Session) DetectInterfaces(ctx context.Context) ([]swi.Result, error) {
	det := swi.NewDetector(s.Config.SWIOptions())
	keys := s.raw.Keys()

	results, err := forEach(ctx, s, StageSWI, keys, func(key core.SampleKey) swi.Result {
		p, _ := s.raw.Get(key)
		return det.Detect(p)
	})
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		s.record(res)
	}
	slog.Info("interface detection complete", "analyte", s.Analyte.Name, "profiles", len(results))
	return results, nil
}

// Refit re-detects the interface of one profile after trimming and outlier
// removal. The raw profile is filtered, so repeating a refit with the same
// filter gives the same interface.
func (s *Session) Refit(key core.SampleKey, f *filter.Config) (swi.Result, error) {
	p, err := s.raw.MustGet(key)
	if err != nil {
		return swi.Result{}, err
	}
	res, err := swi.NewDetector(s.Config.SWIOptions()).Refit(p, f)
	if err != nil {
		s.fail(core.KindInput, StageSWI, key, err)
		return res, err
	}
	s.record(res)
	return res, nil
}

func (s *Session) record(res swi.Result) {
	s.mu.Lock()
	s.interfaces[res.Key] = res
	s.mu.Unlock()

	if !res.Found {
		s.fail(core.KindQuality, StageSWI, res.Key, res.Err())
		return
	}
	for _, w := range res.Warnings {
		s.fail(core.KindQuality, StageSWI, res.Key, errors.New(w))
	}
	if _, err := s.store.Replace(res.Key, res.Profile); err != nil {
		s.fail(core.KindInput, StageSWI, res.Key, err)
	}
}

// Interface returns the latest detection of a profile.
func (s *Session) Interface(key core.SampleKey) (swi.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.interfaces[key]
	return res, ok
}

// Calibrate derives calibrations with the session's mode and adds a
// concentration channel to every profile of a calibrated core.
func (s *Session) Calibrate() calibrate.Set {
	engine := s.Config.Engine()
	if s.Analyte.Unit != "" && s.Config.Calibration.Unit == "" {
		engine.Unit = s.Analyte.Unit
	}

	set, fails := engine.Calibrate(s.store, s.Mode)
	s.mu.Lock()
	s.failures.Merge(fails)
	s.calibration = set
	s.mu.Unlock()

	for _, key := range s.store.Keys() {
		if _, ok := set.ByCore[key.Core]; !ok {
			continue
		}
		p, _ := s.store.Get(key)
		out, err := set.Apply(p)
		if err != nil {
			s.fail(core.KindInput, StageCalibrate, key, err)
			continue
		}
		if _, err := s.store.Replace(key, out); err != nil {
			s.fail(core.KindInput, StageCalibrate, key, err)
		}
	}
	slog.Info("calibration complete",
		"analyte", s.Analyte.Name, "scope", s.Mode.Scope.String(), "cores", len(set.ByCore))
	return set
}

// Calibration returns the latest calibration set.
func (s *Session) Calibration() calibrate.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibration
}

// Threshold returns the configured penetration threshold, falling back to
// the analyte default when none is configured.
func (s *Session) Threshold() float64 {
	if t := s.Config.Penetration.Threshold; t > 0 {
		return t
	}
	return s.Analyte.Threshold
}

// Penetration estimates the penetration depth of every calibrated profile.
// Profiles without a concentration channel are recorded as input failures.
func (s *Session) Penetration(ctx context.Context, threshold float64) ([]penetration.Result, error) {
	opts := s.Config.PenetrationOptions()

	var keys []core.SampleKey
	for _, key := range s.store.Keys() {
		p, _ := s.store.Get(key)
		if !p.HasChannel(core.ChannelConcentration) {
			s.fail(core.KindInput, StagePenetration, key, fmt.Errorf("profile is not calibrated: %w", core.ErrMissingChannel))
			continue
		}
		keys = append(keys, key)
	}

	results, err := forEach(ctx, s, StagePenetration, keys, func(key core.SampleKey) penetration.Result {
		p, _ := s.store.Get(key)
		return penetration.Estimate(p, threshold, opts)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Fit.Valid {
			s.fail(core.KindQuality, StagePenetration, r.Key, fmt.Errorf("refit invalid: %s", r.Fit.Reason))
		}
	}

	s.mu.Lock()
	s.penetration = results
	s.mu.Unlock()
	return results, nil
}

// ToggleExclusion flips whether a sample counts towards its core average and
// returns the new state.
func (s *Session) ToggleExclusion(key core.SampleKey) bool {
	return s.Exclusions.Toggle(key.Core, key.Sample)
}

// ApplyExclusions marks the listed samples as excluded.
func (s *Session) ApplyExclusions(keys []core.SampleKey) {
	for _, k := range keys {
		s.Exclusions.Set(k.Core, k.Sample, true)
	}
}

// Summaries aggregates the latest penetration results per core with the
// current exclusions.
func (s *Session) Summaries() []penetration.Summary {
	s.mu.Lock()
	results := s.penetration
	s.mu.Unlock()
	return penetration.SummarizeAll(results, s.Exclusions)
}

// TotalSulfide combines this session's calibrated H2S profiles with the pH
// profiles of another session following the correlation table.
func (s *Session) TotalSulfide(ph *Session, corr []meta.Correlation) []sulfide.Result {
	cond := s.Config.Conditions()
	var out []sulfide.Result
	for _, c := range corr {
		h, ok := s.store.Get(c.H2S)
		if !ok {
			s.fail(core.KindInput, StageSulfide, c.H2S, fmt.Errorf("H2S profile: %w", core.ErrNotFound))
			continue
		}
		p, ok := ph.store.Get(c.PH)
		if !ok {
			s.fail(core.KindInput, StageSulfide, c.H2S, fmt.Errorf("pH profile %s: %w", c.PH, core.ErrNotFound))
			continue
		}
		res, err := sulfide.Derive(h, p, cond, sulfide.Options{})
		if err != nil {
			s.fail(core.KindInput, StageSulfide, c.H2S, err)
			continue
		}
		out = append(out, res)
		s.progress(StageSulfide)
	}
	return out
}

// Drift corrects every package on the raw profiles. Corrected profiles
// supersede the raw and current ones, so the interface, calibration and
// penetration stages must be run again afterwards.
func (s *Session) Drift(pkgs []drift.Package) ([]drift.Result, error) {
	opts, err := s.Config.DriftOptions()
	if err != nil {
		return nil, err
	}

	var out []drift.Result
	for _, pkg := range pkgs {
		res, err := drift.Correct(s.raw, pkg, opts)
		if err != nil {
			key := core.SampleKey{}
			if len(pkg.Members) > 0 {
				key = pkg.Members[0]
			}
			s.fail(core.KindInput, StageDrift, key, err)
			continue
		}
		for i, key := range res.Members {
			if _, err := s.raw.Replace(key, res.Profiles[i]); err != nil {
				s.fail(core.KindInput, StageDrift, key, err)
				continue
			}
			if _, err := s.store.Replace(key, res.Profiles[i]); err != nil {
				s.fail(core.KindInput, StageDrift, key, err)
			}
		}
		out = append(out, res)
		s.progress(StageDrift)
	}
	return out, nil
}

// Run executes interface detection, calibration and penetration in order.
func (s *Session) Run(ctx context.Context) error {
	if _, err := s.DetectInterfaces(ctx); err != nil {
		return fmt.Errorf("interface detection: %w", err)
	}
	s.Calibrate()
	if _, err := s.Penetration(ctx, s.Threshold()); err != nil {
		return fmt.Errorf("penetration: %w", err)
	}
	return nil
}
