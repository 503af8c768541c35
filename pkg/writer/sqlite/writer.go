// Package sqlite provides SQLite database writing for pipeline results
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
	"github.com/ChrisMcGann/SedKey/pkg/penetration"
	"github.com/ChrisMcGann/SedKey/pkg/sigmoid"
	"github.com/ChrisMcGann/SedKey/pkg/sulfide"
	"github.com/ChrisMcGann/SedKey/pkg/swi"
)

const (
	// Date format for the header table (ISO 8601)
	headerDateFormat = "2006-01-02T15:04:05Z07:00"
	// SchemaVersion is bumped whenever a table changes
	SchemaVersion = 2
)

// Writer handles writing pipeline results to SQLite database files
type Writer struct {
	db         *sql.DB
	outputPath string
	fitStmt    *sql.Stmt
	penStmt    *sql.Stmt
	sulfStmt   *sql.Stmt
	driftStmt  *sql.Stmt
	failStmt   *sql.Stmt
	fitID      int
	closed     bool

	// Recorded in the header table by Finalize.
	Description string
	Mode        *calibrate.Mode
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		fitID:      1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fits (
		id INTEGER PRIMARY KEY,
		stage TEXT NOT NULL,
		core TEXT NOT NULL,
		sample TEXT NOT NULL,
		analyte TEXT,
		variant TEXT,
		valid BOOL,
		reason TEXT,
		a DOUBLE,
		b DOUBLE,
		c DOUBLE,
		d DOUBLE,
		n INTEGER,
		rmse DOUBLE,
		shift DOUBLE,
		interface_depth DOUBLE,
		state TEXT,
		warnings TEXT,
		step DOUBLE,
		blobGrid BLOB,
		blobCurve BLOB,
		blobD1 BLOB,
		blobD2 BLOB
	);

	CREATE TABLE IF NOT EXISTS calibrations (
		core TEXT PRIMARY KEY,
		slope DOUBLE,
		intercept DOUBLE,
		unit TEXT,
		type TEXT,
		scope TEXT,
		reference TEXT,
		high_mean DOUBLE,
		high_std DOUBLE,
		high_n INTEGER,
		low_mean DOUBLE,
		low_std DOUBLE,
		low_n INTEGER,
		low_defaulted BOOL
	);

	CREATE TABLE IF NOT EXISTS penetration (
		core TEXT NOT NULL,
		sample TEXT NOT NULL,
		threshold DOUBLE,
		found BOOL,
		depth DOUBLE,
		concentration DOUBLE,
		baseline DOUBLE,
		excluded BOOL
	);

	CREATE TABLE IF NOT EXISTS penetration_summary (
		core TEXT NOT NULL,
		threshold DOUBLE,
		n INTEGER,
		depth_mean DOUBLE,
		depth_std DOUBLE,
		concentration_mean DOUBLE,
		concentration_std DOUBLE
	);

	CREATE TABLE IF NOT EXISTS sulfide (
		h2s_core TEXT NOT NULL,
		h2s_sample TEXT NOT NULL,
		ph_core TEXT,
		ph_sample TEXT,
		depth DOUBLE,
		h2s DOUBLE,
		ph DOUBLE,
		total DOUBLE,
		total_floored DOUBLE,
		temperature DOUBLE,
		salinity DOUBLE,
		k1 DOUBLE
	);

	CREATE TABLE IF NOT EXISTS drift (
		package TEXT NOT NULL,
		idx INTEGER NOT NULL,
		core TEXT,
		sample TEXT,
		kind TEXT,
		method TEXT,
		observed DOUBLE,
		sigma DOUBLE,
		curve DOUBLE,
		correction DOUBLE,
		reduced_chi2 DOUBLE,
		reference DOUBLE
	);

	CREATE TABLE IF NOT EXISTS failures (
		stage TEXT,
		kind TEXT,
		core TEXT,
		sample TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS header (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT,
		CalibrationScope TEXT,
		CalibrationReference TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.fitStmt, err = w.db.Prepare(`
		INSERT INTO fits (
			id, stage, core, sample, analyte, variant, valid, reason,
			a, b, c, d, n, rmse, shift, interface_depth, state, warnings,
			step, blobGrid, blobCurve, blobD1, blobD2
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fit statement: %w", err)
	}

	w.penStmt, err = w.db.Prepare(`
		INSERT INTO penetration (core, sample, threshold, found, depth, concentration, baseline, excluded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare penetration statement: %w", err)
	}

	w.sulfStmt, err = w.db.Prepare(`
		INSERT INTO sulfide (
			h2s_core, h2s_sample, ph_core, ph_sample, depth, h2s, ph,
			total, total_floored, temperature, salinity, k1
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sulfide statement: %w", err)
	}

	w.driftStmt, err = w.db.Prepare(`
		INSERT INTO drift (
			package, idx, core, sample, kind, method, observed, sigma, curve,
			correction, reduced_chi2, reference
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare drift statement: %w", err)
	}

	w.failStmt, err = w.db.Prepare(`
		INSERT INTO failures (stage, kind, core, sample, message) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare failure statement: %w", err)
	}

	return nil
}

// WriteFit writes one sigmoid fit produced by the named stage.
func (w *Writer) WriteFit(stage string, key core.SampleKey, analyte string, fit sigmoid.FitResult) error {
	return w.writeFit(stage, key, analyte, fit, math.NaN(), "", nil)
}

// WriteInterface writes an interface detection with its underlying fit.
func (w *Writer) WriteInterface(res swi.Result, analyte string) error {
	return w.writeFit("swi", res.Key, analyte, res.Fit, res.Depth, res.State.String(), res.Warnings)
}

func (w *Writer) writeFit(stage string, key core.SampleKey, analyte string, fit sigmoid.FitResult,
	depth float64, state string, warnings []string) error {
	_, err := w.fitStmt.Exec(
		w.fitID,                      // id
		stage,                        // stage
		key.Core,                     // core
		key.Sample,                   // sample
		analyte,                      // analyte
		fit.Variant.String(),         // variant
		fit.Valid,                    // valid
		fit.Reason,                   // reason
		nullable(fit.Params.A),       // a
		nullable(fit.Params.B),       // b
		nullable(fit.Params.C),       // c
		nullable(fit.Params.D),       // d
		fit.N,                        // n
		nullable(fit.RMSE),           // rmse
		nullable(fit.Shift),          // shift
		nullable(depth),              // interface_depth
		state,                        // state
		strings.Join(warnings, "; "), // warnings
		fit.Step,                     // step
		encodeFloat64(fit.Grid),      // blobGrid
		encodeFloat64(fit.Curve),     // blobCurve
		encodeFloat64(fit.D1),        // blobD1
		encodeFloat64(fit.D2),        // blobD2
	)
	if err != nil {
		return fmt.Errorf("failed to insert fit %s: %w", key, err)
	}

	w.fitID++
	return nil
}

// WriteCalibrations writes one row per calibrated core.
func (w *Writer) WriteCalibrations(set calibrate.Set) error {
	for coreName, cal := range set.ByCore {
		a, hasAnchors := set.Anchors[cal.Reference]
		row := []any{
			coreName, cal.Slope, cal.Intercept, cal.Unit, cal.Type,
			cal.Scope.String(), cal.Reference,
		}
		if hasAnchors {
			row = append(row,
				nullable(a.High.Mean), nullable(a.High.Std), a.High.N,
				nullable(a.Low.Mean), nullable(a.Low.Std), a.Low.N, a.Low.Defaulted)
		} else {
			row = append(row, nil, nil, nil, nil, nil, nil, nil)
		}
		_, err := w.db.Exec(`
			INSERT OR REPLACE INTO calibrations (
				core, slope, intercept, unit, type, scope, reference,
				high_mean, high_std, high_n, low_mean, low_std, low_n, low_defaulted
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row...)
		if err != nil {
			return fmt.Errorf("failed to insert calibration for core %s: %w", coreName, err)
		}
	}
	return nil
}

// WritePenetration writes per-sample penetration results with their
// exclusion flags.
func (w *Writer) WritePenetration(results []penetration.Result, ex *penetration.Exclusions) error {
	return w.batch(w.penStmt, len(results), func(stmt *sql.Stmt, i int) error {
		r := results[i]
		_, err := stmt.Exec(
			r.Key.Core, r.Key.Sample, r.Threshold, r.Found,
			nullable(r.Depth), nullable(r.Concentration), nullable(r.Baseline),
			ex.Excluded(r.Key.Core, r.Key.Sample),
		)
		if err != nil {
			return fmt.Errorf("failed to insert penetration %s: %w", r.Key, err)
		}
		return nil
	})
}

// WriteSummaries writes per-core penetration aggregates.
func (w *Writer) WriteSummaries(summaries []penetration.Summary) error {
	for _, s := range summaries {
		_, err := w.db.Exec(`
			INSERT INTO penetration_summary (
				core, threshold, n, depth_mean, depth_std, concentration_mean, concentration_std
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.Core, s.Threshold, s.N, nullable(s.DepthMean), nullable(s.DepthStd),
			nullable(s.ConcMean), nullable(s.ConcStd))
		if err != nil {
			return fmt.Errorf("failed to insert penetration summary for core %s: %w", s.Core, err)
		}
	}
	return nil
}

// WriteSulfide writes the aligned rows of one H2S/pH pair.
func (w *Writer) WriteSulfide(res sulfide.Result) error {
	return w.batch(w.sulfStmt, len(res.Depths), func(stmt *sql.Stmt, i int) error {
		_, err := stmt.Exec(
			res.H2SKey.Core, res.H2SKey.Sample, res.PHKey.Core, res.PHKey.Sample,
			res.Depths[i], res.H2S[i], res.PH[i], res.Total[i], res.TotalFloored[i],
			res.Conditions.TemperatureC, res.Conditions.Salinity, res.K1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sulfide row %s at %g: %w", res.H2SKey, res.Depths[i], err)
		}
		return nil
	})
}

// WriteDrift writes the diagnostics of one package, one row per member.
func (w *Writer) WriteDrift(res drift.Result) error {
	return w.batch(w.driftStmt, len(res.Members), func(stmt *sql.Stmt, i int) error {
		key := res.Members[i]
		_, err := stmt.Exec(
			res.Package, i, key.Core, key.Sample, res.Kind.String(), res.Method.String(),
			res.Observed[i], nullable(res.Sigma[i]), res.Curve[i], res.Corrections[i],
			nullable(res.ReducedChiSq), res.Reference,
		)
		if err != nil {
			return fmt.Errorf("failed to insert drift row %s: %w", key, err)
		}
		return nil
	})
}

// WriteFailures writes the accumulated stage failures.
func (w *Writer) WriteFailures(fails *core.Failures) error {
	list := fails.List()
	return w.batch(w.failStmt, len(list), func(stmt *sql.Stmt, i int) error {
		f := list[i]
		_, err := stmt.Exec(f.Stage, string(f.Kind), f.Key.Core, f.Key.Sample, f.Err.Error())
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
		return nil
	})
}

// batch runs n inserts of a prepared statement in one transaction.
func (w *Writer) batch(stmt *sql.Stmt, n int, fn func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.Stmt(stmt)
	defer txStmt.Close()

	for i := 0; i < n; i++ {
		if err := fn(txStmt, i); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// encodeFloat64 encodes a series as a little-endian float64 blob
func encodeFloat64(values []float64) []byte {
	if values == nil {
		return nil
	}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64 decodes a blob written by the writer.
func DecodeFloat64(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

// nullable stores non-finite values as NULL
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Finalize writes the header table and closes the database. Call it once
// every result has been written; Close alone leaves the header empty.
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}

	var scope, reference any
	if w.Mode != nil {
		scope, reference = w.Mode.Scope.String(), w.Mode.Reference
	}
	_, err := w.db.Exec(`
		INSERT INTO header (version, CreationDate, Description, CalibrationScope, CalibrationReference)
		VALUES (?, ?, ?, ?, ?)
	`, SchemaVersion, time.Now().Format(headerDateFormat), w.Description, scope, reference)
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	return w.Close()
}

// Close releases the prepared statements and the database connection without
// writing a header, so an aborted run is recognisable. It is a no-op after
// Finalize.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	for _, stmt := range []*sql.Stmt{w.fitStmt, w.penStmt, w.sulfStmt, w.driftStmt, w.failStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
