package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Common pipeline errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyProfile       = errors.New("empty profile")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrMissingChannel     = errors.New("missing channel")
	ErrMissingInput       = errors.New("missing input")
	ErrDegenerateAnchors  = errors.New("degenerate calibration anchors")
	ErrNoInterface        = errors.New("no interface found")
)

// ValidationError represents an error found during profile validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// FailureKind classifies a stage-local failure.
type FailureKind string

// Failure kinds
const (
	KindInput   FailureKind = "input"   // missing parameter, degenerate anchors, empty profile
	KindQuality FailureKind = "quality" // inflection mismatch, non-convergent fit
	KindNumeric FailureKind = "numeric" // NaN anchors, zero-width windows
)

// Failure records a problem affecting one core or sample in one stage.
// An empty Sample means the failure applies to the whole core.
type Failure struct {
	Kind  FailureKind
	Stage string
	Key   SampleKey
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s [%s] %s: %v", f.Stage, f.Kind, f.Key, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Failures accumulates stage-local failures so that a batch keeps going.
type Failures struct {
	items []Failure
}

// Add appends a failure and logs it.
func (fs *Failures) Add(kind FailureKind, stage string, key SampleKey, err error) {
	f := Failure{Kind: kind, Stage: stage, Key: key, Err: err}
	fs.items = append(fs.items, f)

	level := slog.LevelWarn
	if kind == KindQuality {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "pipeline stage failure",
		"stage", stage, "kind", string(kind), "core", key.Core, "sample", key.Sample, "error", err)
}

// Merge appends all failures of other.
func (fs *Failures) Merge(other Failures) {
	fs.items = append(fs.items, other.items...)
}

// Len returns the number of recorded failures.
func (fs *Failures) Len() int {
	return len(fs.items)
}

// List returns the recorded failures sorted by stage, core and sample.
func (fs *Failures) List() []Failure {
	out := append([]Failure(nil), fs.items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		if out[i].Key.Core != out[j].Key.Core {
			return out[i].Key.Core < out[j].Key.Core
		}
		return out[i].Key.Sample < out[j].Key.Sample
	})
	return out
}

// Of returns the failures recorded for one key.
func (fs *Failures) Of(key SampleKey) []Failure {
	var out []Failure
	for _, f := range fs.items {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}
