package cmd

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
	"github.com/ChrisMcGann/SedKey/pkg/penetration"
)

func TestLoadAnalyte(t *testing.T) {
	a, err := loadAnalyte("o2")
	require.NoError(t, err)
	assert.Equal(t, "O2", a.Name)

	_, err = loadAnalyte("N2O")
	assert.ErrorContains(t, err, "unknown analyte")

	path := filepath.Join(t.TempDir(), "analytes.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,unit,threshold\nN2O,µmol/L,0.2\n"), 0o644))
	analytesCSV = path
	t.Cleanup(func() { analytesCSV = "" })

	a, err = loadAnalyte("N2O")
	require.NoError(t, err)
	assert.Equal(t, 0.2, a.Threshold)
}

func TestReadProfilesNeedsPath(t *testing.T) {
	_, err := readProfiles("", "O2")
	assert.ErrorIs(t, err, core.ErrMissingInput)
}

func TestPrintSummaries(t *testing.T) {
	ex := penetration.NewExclusions()
	ex.Set("A", "2", true)
	results := []penetration.Result{
		{Key: core.SampleKey{Core: "A", Sample: "1"}, Threshold: 1, Found: true, Depth: 460, Concentration: 0.9},
		{Key: core.SampleKey{Core: "A", Sample: "2"}, Threshold: 1, Found: true, Depth: 520, Concentration: 0.9},
		{Key: core.SampleKey{Core: "A", Sample: "3"}, Threshold: 1, Depth: math.NaN(), Concentration: math.NaN()},
	}

	var buf bytes.Buffer
	printSummaries(&buf, penetration.SummarizeAll(results, ex), "µmol/L")
	out := buf.String()
	assert.Contains(t, out, "Penetration at 1 µmol/L")
	assert.Contains(t, out, "n=1")
	assert.Contains(t, out, "excluded")
	assert.Contains(t, out, "no crossing")
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	var fails core.Failures
	printFailures(&buf, &fails)
	assert.Empty(t, buf.String())

	fails.Add(core.KindInput, "calibrate", core.SampleKey{Core: "C"}, errors.New("identical anchors"))
	printFailures(&buf, &fails)
	assert.Contains(t, buf.String(), "Failures (1)")
	assert.Contains(t, buf.String(), "identical anchors")
}

func TestPrintDrift(t *testing.T) {
	var buf bytes.Buffer
	printDrift(&buf, []drift.Result{{
		Package:      "P1",
		Kind:         drift.Linear,
		Method:       drift.Trend,
		Members:      []core.SampleKey{{Core: "A", Sample: "1"}},
		Observed:     []float64{10},
		Corrections:  []float64{-0.5},
		ReducedChiSq: math.NaN(),
	}})
	out := buf.String()
	assert.Contains(t, out, "trend")
	assert.Contains(t, out, "A/1")
	assert.Contains(t, out, "-0.50")
}
