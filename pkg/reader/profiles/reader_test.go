package profiles

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

const measurements = `# O2 profiles, depth in µm
core,sample,depth,signal
A,1,0,-2.5
A,1,100,-3.0
A,1,50,-2.8
A,2,0,-1
A,2,100,
B,1,0,10
B,1,0,11
B,1,100,12
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(measurements), "O2")

	var got []*core.Profile
	for r.Next() {
		got = append(got, r.Profile())
	}
	require.NoError(t, r.Err())
	require.Len(t, got, 3)

	a1 := got[0]
	assert.Equal(t, core.SampleKey{Core: "A", Sample: "1"}, a1.Key)
	assert.Equal(t, "O2", a1.Analyte)
	assert.Equal(t, []float64{0, 50, 100}, a1.Depths)
	assert.Equal(t, []float64{-2.5, -2.8, -3.0}, a1.Channel(core.ChannelSignal))

	a2 := got[1]
	assert.True(t, math.IsNaN(a2.Channel(core.ChannelSignal)[1]), "empty cell reads as NaN")

	b1 := got[2]
	assert.Equal(t, []float64{0, 100}, b1.Depths)
	assert.Equal(t, []float64{10, 12}, b1.Channel(core.ChannelSignal), "first duplicate wins")
	assert.Equal(t, []string{core.ChannelSignal}, r.Channels())
}

func TestReaderExtraChannels(t *testing.T) {
	in := "Sample,Core,Depth,Signal,Concentration\n1,A,100,-3,0\n1,A,0,0,250\n"
	r := NewReader(strings.NewReader(in), "O2")
	require.True(t, r.Next(), r.Err())

	p := r.Profile()
	assert.Equal(t, []float64{0, 100}, p.Depths)
	assert.Equal(t, []float64{250, 0}, p.Channel(core.ChannelConcentration))
	assert.Equal(t, []string{core.ChannelSignal, "concentration"}, r.Channels())
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing column", "core,sample,depth\nA,1,0\n", core.ErrMissingInput},
		{"empty core", "core,sample,depth,signal\n,1,0,1\n", core.ErrMissingInput},
		{"bad depth", "core,sample,depth,signal\nA,1,deep,1\n", nil},
		{"bad signal", "core,sample,depth,signal\nA,1,0,high\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), "O2")
			assert.False(t, r.Next())
			require.Error(t, r.Err())
			if tt.want != nil {
				assert.ErrorIs(t, r.Err(), tt.want)
			}
		})
	}
}

func TestReaderEmpty(t *testing.T) {
	r := NewReader(strings.NewReader(""), "O2")
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestReadInto(t *testing.T) {
	store := core.NewStore()
	n, err := ReadInto(strings.NewReader(measurements), "O2", store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"A", "B"}, store.Cores())
	assert.Equal(t, []string{"1", "2"}, store.Samples("A"))

	split := "core,sample,depth,signal\nA,1,0,1\nA,2,0,1\nA,1,50,1\n"
	_, err = ReadInto(strings.NewReader(split), "O2", core.NewStore())
	assert.ErrorIs(t, err, ErrSplitProfile)
}
