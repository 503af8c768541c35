package core

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Analyte describes a measured species and how its profiles are reported.
type Analyte struct {
	Name      string
	Unit      string  // physical unit after calibration
	Threshold float64 // default penetration threshold in Unit
}

// AnalyteDatabase stores analyte definitions keyed by upper-case name
type AnalyteDatabase struct {
	analytes map[string]Analyte
}

// NewAnalyteDatabase creates an empty analyte database
func NewAnalyteDatabase() *AnalyteDatabase {
	return &AnalyteDatabase{
		analytes: make(map[string]Analyte),
	}
}

// LoadFromCSV loads analytes from a CSV file (format: name,unit,threshold)
func (db *AnalyteDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	if !scanner.Scan() {
		return scanner.Err()
	}

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		a := Analyte{
			Name: strings.TrimSpace(parts[0]),
			Unit: strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			thrStr := strings.TrimSpace(parts[2])
			thr, err := strconv.ParseFloat(thrStr, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid threshold value '%s': %w", lineNum, thrStr, err)
			}
			a.Threshold = thr
		}

		db.Add(a)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Get returns the analyte definition for a name (case-insensitive)
func (db *AnalyteDatabase) Get(name string) (Analyte, bool) {
	a, ok := db.analytes[strings.ToUpper(strings.TrimSpace(name))]
	return a, ok
}

// Add adds or updates an analyte
func (db *AnalyteDatabase) Add(a Analyte) {
	db.analytes[strings.ToUpper(a.Name)] = a
}

// Names returns the registered analyte names in sorted order
func (db *AnalyteDatabase) Names() []string {
	names := make([]string, 0, len(db.analytes))
	for _, a := range db.analytes {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// DefaultAnalyteDatabase returns an AnalyteDatabase pre-loaded with the
// usual microsensor species
func DefaultAnalyteDatabase() *AnalyteDatabase {
	db := NewAnalyteDatabase()

	db.Add(Analyte{Name: "O2", Unit: "µmol/L", Threshold: 1.0})
	db.Add(Analyte{Name: "pH", Unit: "pH"})
	db.Add(Analyte{Name: "H2S", Unit: "µmol/L", Threshold: 0.5})
	db.Add(Analyte{Name: "EH", Unit: "mV"})

	return db
}
