// Package meta reads the metadata tables that accompany a measurement set:
// excluded samples, H2S/pH correlations and drift acquisition order.
package meta

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
)

// Exclusion marks one sample as excluded for an analyte.
type Exclusion struct {
	Analyte string
	Key     core.SampleKey
}

// Correlation pairs an H2S profile with the pH profile measured alongside it.
type Correlation struct {
	H2S core.SampleKey
	PH  core.SampleKey
}

// readTable calls fn for every data row with the required columns looked up
// by lower-case header name.
func readTable(r io.Reader, required []string, fn func(row map[string]string, line int) error) error {
	c := csv.NewReader(r)
	c.Comment = '#'
	c.TrimLeadingSpace = true

	header, err := c.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return fmt.Errorf("header is missing column %q: %w", col, core.ErrMissingInput)
		}
	}

	line := 1
	for {
		rec, err := c.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return err
		}
		row := make(map[string]string, len(required))
		for _, col := range required {
			v := strings.TrimSpace(rec[idx[col]])
			if v == "" {
				return fmt.Errorf("line %d: empty %s: %w", line, col, core.ErrMissingInput)
			}
			row[col] = v
		}
		if err := fn(row, line); err != nil {
			return err
		}
	}
}

// ReadExclusions reads an analyte,core,sample table.
func ReadExclusions(r io.Reader) ([]Exclusion, error) {
	var out []Exclusion
	err := readTable(r, []string{"analyte", "core", "sample"}, func(row map[string]string, _ int) error {
		out = append(out, Exclusion{
			Analyte: row["analyte"],
			Key:     core.SampleKey{Core: row["core"], Sample: row["sample"]},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading exclusions: %w", err)
	}
	return out, nil
}

// ForAnalyte returns the exclusions of one analyte, matched case-insensitively.
func ForAnalyte(ex []Exclusion, analyte string) []core.SampleKey {
	var out []core.SampleKey
	for _, e := range ex {
		if strings.EqualFold(e.Analyte, analyte) {
			out = append(out, e.Key)
		}
	}
	return out
}

// ReadCorrelations reads an h2s_core,h2s_sample,ph_core,ph_sample table.
// Every H2S profile may appear only once.
func ReadCorrelations(r io.Reader) ([]Correlation, error) {
	var out []Correlation
	seen := make(map[core.SampleKey]int)
	cols := []string{"h2s_core", "h2s_sample", "ph_core", "ph_sample"}
	err := readTable(r, cols, func(row map[string]string, line int) error {
		c := Correlation{
			H2S: core.SampleKey{Core: row["h2s_core"], Sample: row["h2s_sample"]},
			PH:  core.SampleKey{Core: row["ph_core"], Sample: row["ph_sample"]},
		}
		if prev, ok := seen[c.H2S]; ok {
			return fmt.Errorf("line %d: H2S profile %s already correlated on line %d", line, c.H2S, prev)
		}
		seen[c.H2S] = line
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading correlations: %w", err)
	}
	return out, nil
}

// ReadPackages reads a package,core,sample table. Packages are returned in
// order of first appearance and members in row order, which is the
// acquisition order.
func ReadPackages(r io.Reader) ([]drift.Package, error) {
	var out []drift.Package
	pos := make(map[string]int)
	member := make(map[core.SampleKey]string)
	err := readTable(r, []string{"package", "core", "sample"}, func(row map[string]string, line int) error {
		id := row["package"]
		key := core.SampleKey{Core: row["core"], Sample: row["sample"]}
		if other, ok := member[key]; ok {
			return fmt.Errorf("line %d: %s is already a member of package %s", line, key, other)
		}
		member[key] = id

		i, ok := pos[id]
		if !ok {
			i = len(out)
			pos[id] = i
			out = append(out, drift.Package{ID: id})
		}
		out[i].Members = append(out[i].Members, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading packages: %w", err)
	}
	return out, nil
}
