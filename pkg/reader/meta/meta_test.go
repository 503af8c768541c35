package meta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

func key(c, s string) core.SampleKey {
	return core.SampleKey{Core: c, Sample: s}
}

func TestReadExclusions(t *testing.T) {
	in := "Analyte,Core,Sample\nO2,A,2\nH2S,A,1\no2,B,4\n"
	ex, err := ReadExclusions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, ex, 3)

	assert.Equal(t, []core.SampleKey{key("A", "2"), key("B", "4")}, ForAnalyte(ex, "O2"))
	assert.Equal(t, []core.SampleKey{key("A", "1")}, ForAnalyte(ex, "h2s"))
	assert.Empty(t, ForAnalyte(ex, "pH"))
}

func TestReadCorrelations(t *testing.T) {
	in := "h2s_core,h2s_sample,ph_core,ph_sample\nA,1,A,7\nA,2,A,8\n"
	c, err := ReadCorrelations(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Correlation{
		{H2S: key("A", "1"), PH: key("A", "7")},
		{H2S: key("A", "2"), PH: key("A", "8")},
	}, c)

	_, err = ReadCorrelations(strings.NewReader(in + "A,1,B,9\n"))
	assert.ErrorContains(t, err, "already correlated")
}

func TestReadPackages(t *testing.T) {
	in := "package,core,sample\nP2,A,3\nP1,A,1\nP2,A,4\nP1,B,1\n"
	pkgs, err := ReadPackages(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "P2", pkgs[0].ID)
	assert.Equal(t, []core.SampleKey{key("A", "3"), key("A", "4")}, pkgs[0].Members)
	assert.Equal(t, []core.SampleKey{key("A", "1"), key("B", "1")}, pkgs[1].Members)

	_, err = ReadPackages(strings.NewReader(in + "P3,A,1\n"))
	assert.ErrorContains(t, err, "already a member")
}

func TestReadTableErrors(t *testing.T) {
	_, err := ReadExclusions(strings.NewReader("core,sample\nA,1\n"))
	assert.ErrorIs(t, err, core.ErrMissingInput)

	_, err = ReadPackages(strings.NewReader("package,core,sample\nP1,,1\n"))
	assert.ErrorIs(t, err, core.ErrMissingInput)

	pkgs, err := ReadPackages(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}
