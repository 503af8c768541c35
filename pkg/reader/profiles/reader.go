// Package profiles provides a streaming reader for long-format microsensor
// measurement tables.
//
// The input is CSV with a header naming at least the columns core, sample,
// depth and signal. Further numeric columns are read as extra channels.
// Rows of one profile must be adjacent; their order does not matter.
package profiles

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/SedKey/pkg/core"
)

// Required column names
const (
	ColCore   = "core"
	ColSample = "sample"
	ColDepth  = "depth"
	ColSignal = "signal"
)

type row struct {
	key    core.SampleKey
	depth  float64
	values []float64 // per channel column
}

// Reader provides streaming access to a measurement table, one profile at a
// time.
type Reader struct {
	csv      *csv.Reader
	analyte  string
	lineNum  int
	header   bool
	idx      map[string]int
	channels []string // channel names in column order
	chanCols []int
	pending  *row
	current  *core.Profile
	err      error
}

// NewReader creates a reader that tags every profile with analyte.
func NewReader(r io.Reader, analyte string) *Reader {
	c := csv.NewReader(r)
	c.Comment = '#'
	c.TrimLeadingSpace = true
	return &Reader{csv: c, analyte: analyte}
}

// Next advances to the next profile. Returns false at end of input or on
// error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	p, err := r.readProfile()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.current = p
	return true
}

// Profile returns the current profile
func (r *Reader) Profile() *core.Profile {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Channels returns the channel names found in the header.
func (r *Reader) Channels() []string {
	return r.channels
}

func (r *Reader) readProfile() (*core.Profile, error) {
	if !r.header {
		if err := r.readHeader(); err != nil {
			return nil, err
		}
	}

	var rows []*row
	if r.pending != nil {
		rows = append(rows, r.pending)
		r.pending = nil
	}
	for {
		next, err := r.readRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 && next.key != rows[0].key {
			r.pending = next
			break
		}
		rows = append(rows, next)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return r.build(rows)
}

func (r *Reader) readHeader() error {
	rec, err := r.csv.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	r.lineNum++
	r.header = true

	r.idx = make(map[string]int, len(rec))
	for i, name := range rec {
		r.idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range []string{ColCore, ColSample, ColDepth, ColSignal} {
		if _, ok := r.idx[col]; !ok {
			return fmt.Errorf("header is missing column %q: %w", col, core.ErrMissingInput)
		}
	}

	// signal first, then extra columns in file order
	r.channels = []string{core.ChannelSignal}
	r.chanCols = []int{r.idx[ColSignal]}
	for i, name := range rec {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case ColCore, ColSample, ColDepth, ColSignal, "":
			continue
		}
		r.channels = append(r.channels, name)
		r.chanCols = append(r.chanCols, i)
	}
	return nil
}

func (r *Reader) readRow() (*row, error) {
	rec, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.lineNum++
	if err != nil {
		return nil, err
	}

	out := &row{
		key: core.SampleKey{
			Core:   strings.TrimSpace(rec[r.idx[ColCore]]),
			Sample: strings.TrimSpace(rec[r.idx[ColSample]]),
		},
		values: make([]float64, len(r.chanCols)),
	}
	if out.key.Core == "" || out.key.Sample == "" {
		return nil, fmt.Errorf("line %d: empty core or sample: %w", r.lineNum, core.ErrMissingInput)
	}

	out.depth, err = parseValue(rec[r.idx[ColDepth]])
	if err != nil || math.IsNaN(out.depth) {
		return nil, fmt.Errorf("line %d: invalid depth %q", r.lineNum, rec[r.idx[ColDepth]])
	}
	for i, col := range r.chanCols {
		v, err := parseValue(rec[col])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s value: %w", r.lineNum, r.channels[i], err)
		}
		out.values[i] = v
	}
	return out, nil
}

func (r *Reader) build(rows []*row) (*core.Profile, error) {
	depths := make([]float64, len(rows))
	signal := make([]float64, len(rows))
	for i, rw := range rows {
		depths[i] = rw.depth
		signal[i] = rw.values[0]
	}

	p, err := core.NewProfile(rows[0].key, r.analyte, depths, signal)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", rows[0].key, err)
	}
	if len(r.channels) == 1 {
		return p, nil
	}

	// NewProfile sorts and de-duplicates, so extra channels are mapped back
	// through depth with the first occurrence winning.
	for c := 1; c < len(r.channels); c++ {
		byDepth := make(map[float64]float64, len(rows))
		for _, rw := range rows {
			if _, seen := byDepth[rw.depth]; !seen {
				byDepth[rw.depth] = rw.values[c]
			}
		}
		values := make([]float64, p.Len())
		for i, d := range p.Depths {
			values[i] = byDepth[d]
		}
		if p, err = p.WithChannel(r.channels[c], values); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// parseValue parses a number; empty cells and NA read as NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "n/a":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ErrSplitProfile reports rows of one profile that are not adjacent.
var ErrSplitProfile = errors.New("profile rows are not adjacent")

// ReadInto reads every profile into store and returns how many were read.
func ReadInto(r io.Reader, analyte string, store *core.Store) (int, error) {
	reader := NewReader(r, analyte)
	seen := make(map[core.SampleKey]bool)
	count := 0
	for reader.Next() {
		p := reader.Profile()
		if seen[p.Key] {
			return count, fmt.Errorf("%s: %w", p.Key, ErrSplitProfile)
		}
		seen[p.Key] = true
		if err := store.Put(p); err != nil {
			return count, err
		}
		count++
	}
	if err := reader.Err(); err != nil {
		return count, fmt.Errorf("error reading measurements: %w", err)
	}
	return count, nil
}
