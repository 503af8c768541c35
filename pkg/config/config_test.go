package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Fit.Step)
	assert.Equal(t, 0.1, cfg.Fit.SeedB)
	assert.Equal(t, 2, cfg.SWI.Window)
	assert.Equal(t, 100.0, cfg.Anchors.Window)
	assert.Equal(t, 200.0, cfg.Anchors.HighFallback)
	assert.Equal(t, 50.0, cfg.Anchors.LowFallback)
	assert.Equal(t, 3, cfg.Anchors.MinPoints)
	assert.Equal(t, "per-core", cfg.Calibration.Scope)
	assert.Equal(t, 13.0, cfg.Sulfide.Temperature)
	assert.Equal(t, 5, cfg.Drift.Samples)
	assert.Nil(t, cfg.Drift.Reference)
	assert.Equal(t, 4, cfg.Workers)

	dopts, err := cfg.DriftOptions()
	require.NoError(t, err)
	assert.Equal(t, drift.Offset, dopts.Method)

	mode, err := cfg.CalibrationMode()
	require.NoError(t, err)
	assert.Equal(t, calibrate.ScopePerCore, mode.Scope)

	e := cfg.Engine()
	assert.Equal(t, 100.0, e.Bounds.High)
	assert.Equal(t, 0.0, e.Bounds.Low)
	assert.Equal(t, 2, cfg.SWIOptions().Window)
	assert.Equal(t, 3, cfg.PenetrationOptions().BaselineSamples)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sedkey.yaml")
	content := `
fit:
  step: 5
swi:
  window: 3
calibration:
  scope: single-core
  reference: C2
  saturation: 280
  unit: µmol/L
sulfide:
  temperature: 8.5
  salinity: 32
drift:
  kind: poly2
  method: trend
  reference: 2
workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.SigmoidOptions().Step)
	assert.Equal(t, 3, cfg.SWI.Window)

	mode, err := cfg.CalibrationMode()
	require.NoError(t, err)
	assert.Equal(t, calibrate.ScopeSingleCore, mode.Scope)
	assert.Equal(t, "C2", mode.Reference)
	assert.Equal(t, "µmol/L", cfg.Engine().Unit)

	cond := cfg.Conditions()
	assert.Equal(t, 8.5, cond.TemperatureC)
	assert.Equal(t, 32.0, cond.Salinity)

	opts, err := cfg.DriftOptions()
	require.NoError(t, err)
	assert.Equal(t, drift.Poly2, opts.Kind)
	assert.Equal(t, drift.Trend, opts.Method)
	require.NotNil(t, opts.Reference)
	assert.Equal(t, 2.0, *opts.Reference)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SEDKEY_FIT_STEP", "2.5")
	t.Setenv("SEDKEY_PENETRATION_THRESHOLD", "3")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Fit.Step)
	assert.Equal(t, 3.0, cfg.Penetration.Threshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"zero step", "fit.step", 0},
		{"zero window", "swi.window", 0},
		{"bad scope", "calibration.scope", "everything"},
		{"single-core without reference", "calibration.scope", "single-core"},
		{"external without slope", "calibration.scope", "external"},
		{"hot water", "sulfide.temperature", 95},
		{"bad drift kind", "drift.kind", "cubic"},
		{"bad drift method", "drift.method", "scale"},
		{"no workers", "workers", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestExternalMode(t *testing.T) {
	v := New()
	v.Set("calibration.scope", "external")
	v.Set("calibration.external_slope", -0.059)
	v.Set("calibration.external_intercept", 7.4)

	cfg, err := Load(v)
	require.NoError(t, err)
	mode, err := cfg.CalibrationMode()
	require.NoError(t, err)
	assert.Equal(t, calibrate.ScopeExternal, mode.Scope)
	assert.Equal(t, -0.059, mode.External.Slope)
}
