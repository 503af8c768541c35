package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/config"
	"github.com/ChrisMcGann/SedKey/pkg/pipeline"
	"github.com/ChrisMcGann/SedKey/pkg/reader/meta"
)

var (
	// Flags for drift, run and sulfide
	packagesCSV     string
	phFile          string
	correlationsCSV string
	phSlope         float64
	phIntercept     float64
)

func init() {
	driftCmd.Flags().StringVar(&packagesCSV, "packages", "", "CSV assigning profiles to measurement packages (package,core,sample) (required)")
	driftCmd.MarkFlagRequired("packages")
	runCmd.Flags().StringVar(&packagesCSV, "packages", "", "CSV of measurement packages; drift is corrected first when given")

	sulfideCmd.Flags().StringVar(&phFile, "ph", "", "pH measurement CSV (required)")
	sulfideCmd.Flags().StringVar(&correlationsCSV, "correlations", "", "CSV pairing H2S and pH profiles (h2s_core,h2s_sample,ph_core,ph_sample) (required)")
	sulfideCmd.Flags().Float64Var(&phSlope, "ph-slope", 0, "pH per mV of the pH electrode (0 = pH file carries a concentration column)")
	sulfideCmd.Flags().Float64Var(&phIntercept, "ph-intercept", 0, "pH at 0 mV of the pH electrode")
	sulfideCmd.Flags().Float64("temperature", 13, "In situ temperature, °C")
	sulfideCmd.Flags().Float64("salinity", 0, "Salinity, per mille")
	_ = v.BindPFlag("sulfide.temperature", sulfideCmd.Flags().Lookup("temperature"))
	_ = v.BindPFlag("sulfide.salinity", sulfideCmd.Flags().Lookup("salinity"))

	sulfideCmd.MarkFlagRequired("ph")
	sulfideCmd.MarkFlagRequired("correlations")
}

var swiCmd = &cobra.Command{
	Use:   "swi",
	Short: "Detect the sediment-water interface of every profile",
	Long: `Fit a four-parameter sigmoid to every profile and shift its depth index so
that the steepest point of the fit, the sediment-water interface, is at zero.

Examples:
  sedkey swi --in o2.csv --out results.db
  sedkey swi --in o2.csv --step 5 --workers 8`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := newJob("O2")
		if err != nil {
			return err
		}
		defer j.close()
		if err := j.detect(cmd.Context()); err != nil {
			return err
		}
		return j.finish()
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Align and calibrate profiles",
	Long: `Detect interfaces, then map the raw signal to concentration using the
plateau anchors of each core (per-core), of one reference core (single-core)
or an externally supplied slope and intercept (external).

Examples:
  sedkey calibrate --in o2.csv --out results.db
  sedkey calibrate --in o2.csv --scope single-core --reference C1`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := newJob("O2")
		if err != nil {
			return err
		}
		defer j.close()
		if err := j.detect(cmd.Context()); err != nil {
			return err
		}
		if err := j.calibrate(); err != nil {
			return err
		}
		return j.finish()
	},
}

var penetrationCmd = &cobra.Command{
	Use:   "penetration",
	Short: "Estimate penetration depths and core averages",
	Long: `Detect interfaces, calibrate, and find the depth at which the fitted
concentration first drops below the threshold. Depths are averaged per core
without the samples listed in the exclusion file.

Examples:
  sedkey penetration --in o2.csv --out results.db --threshold 1
  sedkey penetration --in o2.csv --exclusions excluded.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := newJob("O2")
		if err != nil {
			return err
		}
		defer j.close()
		if err := j.detect(cmd.Context()); err != nil {
			return err
		}
		if err := j.calibrate(); err != nil {
			return err
		}
		if err := j.penetrate(cmd.Context()); err != nil {
			return err
		}
		return j.finish()
	},
}

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Correct sensor drift across measurement packages",
	Long: `Fit a linear or quadratic trend to the mean water-column signal of the
profiles of each package, in acquisition order, and remove it from the raw
signal.

Examples:
  sedkey drift --in o2.csv --packages packages.csv --out results.db`,
	RunE: func(_ *cobra.Command, _ []string) error {
		j, err := newJob("O2")
		if err != nil {
			return err
		}
		defer j.close()
		if err := j.drift(packagesCSV); err != nil {
			return err
		}
		return j.finish()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run drift correction, interface detection, calibration and penetration",
	Long: `Run the full single-analyte pipeline. Drift correction is applied first
when a package file is given, so every later stage sees corrected profiles.

Examples:
  sedkey run --in o2.csv --packages packages.csv --exclusions excluded.csv --out results.db`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := newJob("O2")
		if err != nil {
			return err
		}
		defer j.close()
		if packagesCSV != "" {
			if err := j.drift(packagesCSV); err != nil {
				return err
			}
		}
		if err := j.detect(cmd.Context()); err != nil {
			return err
		}
		if err := j.calibrate(); err != nil {
			return err
		}
		if err := j.penetrate(cmd.Context()); err != nil {
			return err
		}
		return j.finish()
	},
}

var sulfideCmd = &cobra.Command{
	Use:   "sulfide",
	Short: "Derive total sulfide from correlated H2S and pH profiles",
	Long: `Calibrate the H2S profiles, combine each with its correlated pH profile on
a common depth grid and compute total sulfide with the first dissociation
constant of H2S at the given temperature and salinity. Both files share the
depth index of the measurement.

Examples:
  sedkey sulfide --in h2s.csv --ph ph.csv --correlations pairs.csv --temperature 8 --salinity 30
  sedkey sulfide --in h2s.csv --ph ph.csv --correlations pairs.csv --ph-slope -0.0169 --ph-intercept 7.1`,
	RunE: runSulfide,
}

func runSulfide(_ *cobra.Command, _ []string) error {
	j, err := newJob("H2S")
	if err != nil {
		return err
	}
	defer j.close()

	ph, err := phSession(j.cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(correlationsCSV)
	if err != nil {
		return fmt.Errorf("failed to open correlation file: %w", err)
	}
	corr, err := meta.ReadCorrelations(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read correlation file: %w", err)
	}

	if err := j.calibrate(); err != nil {
		return err
	}

	done := j.progress("Total sulfide", len(corr))
	results := j.session.TotalSulfide(ph, corr)
	done()

	if j.writer != nil {
		for _, r := range results {
			if err := j.writer.WriteSulfide(r); err != nil {
				return fmt.Errorf("failed to write sulfide %s: %w", r.H2SKey, err)
			}
		}
	}
	printSulfide(os.Stdout, results)

	phFails := ph.Failures()
	printFailures(os.Stdout, &phFails)
	if j.writer != nil {
		if err := j.writer.WriteFailures(&phFails); err != nil {
			return fmt.Errorf("failed to write failures: %w", err)
		}
	}
	return j.finish()
}

// phSession reads the pH file and calibrates it with the external electrode
// slope when one is given.
func phSession(cfg *config.Config) (*pipeline.Session, error) {
	analyte, err := loadAnalyte("pH")
	if err != nil {
		return nil, err
	}
	store, err := readProfiles(phFile, analyte.Name)
	if err != nil {
		return nil, err
	}
	s, err := pipeline.NewSession(cfg, analyte, store)
	if err != nil {
		return nil, err
	}
	if phSlope == 0 {
		return s, nil
	}

	ext, err := calibrate.External(phSlope, phIntercept, analyte.Unit)
	if err != nil {
		return nil, err
	}
	s.Mode = calibrate.Mode{Scope: calibrate.ScopeExternal, External: ext}
	s.Calibrate()
	return s, nil
}
