package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/ChrisMcGann/SedKey/pkg/config"
	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/pipeline"
	"github.com/ChrisMcGann/SedKey/pkg/reader/meta"
	"github.com/ChrisMcGann/SedKey/pkg/reader/profiles"
	"github.com/ChrisMcGann/SedKey/pkg/writer/sqlite"
)

// job is one command invocation: a session over the input file and the
// optional result database.
type job struct {
	cfg     *config.Config
	session *pipeline.Session
	writer  *sqlite.Writer
}

func loadAnalyte(name string) (core.Analyte, error) {
	db := core.DefaultAnalyteDatabase()
	if analytesCSV != "" {
		f, err := os.Open(analytesCSV)
		if err != nil {
			return core.Analyte{}, fmt.Errorf("failed to open analyte CSV: %w", err)
		}
		defer f.Close()
		if err := db.LoadFromCSV(f); err != nil {
			return core.Analyte{}, fmt.Errorf("failed to load analyte CSV: %w", err)
		}
	}

	a, ok := db.Get(name)
	if !ok {
		return core.Analyte{}, fmt.Errorf("unknown analyte '%s', must be one of %s", name, strings.Join(db.Names(), ", "))
	}
	return a, nil
}

func readProfiles(path, analyte string) (*core.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("no %s measurement file given: %w", analyte, core.ErrMissingInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	store := core.NewStore()
	n, err := profiles.ReadInto(f, analyte, store)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	fmt.Printf("Loaded %d %s profiles in %d cores from %s\n", n, analyte, len(store.Cores()), path)
	return store, nil
}

// newSession reads one measurement file into a session.
func newSession(cfg *config.Config, path, analyteDefault string) (*pipeline.Session, error) {
	name := analyteName
	if name == "" {
		name = analyteDefault
	}
	analyte, err := loadAnalyte(name)
	if err != nil {
		return nil, err
	}
	store, err := readProfiles(path, analyte.Name)
	if err != nil {
		return nil, err
	}
	return pipeline.NewSession(cfg, analyte, store)
}

// newJob loads the configuration and the main input file, applies the
// exclusion list and opens the output database when one is requested.
func newJob(analyteDefault string) (*job, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg, inputFile, analyteDefault)
	if err != nil {
		return nil, err
	}

	if exclusions != "" {
		f, err := os.Open(exclusions)
		if err != nil {
			return nil, fmt.Errorf("failed to open exclusion list: %w", err)
		}
		ex, err := meta.ReadExclusions(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read exclusion list: %w", err)
		}
		keys := meta.ForAnalyte(ex, s.Analyte.Name)
		s.ApplyExclusions(keys)
		fmt.Printf("Excluding %d %s samples from core averages\n", len(keys), s.Analyte.Name)
	}

	j := &job{cfg: cfg, session: s}
	if outputFile != "" {
		j.writer, err = sqlite.NewWriter(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create output database: %w", err)
		}
	}
	return j, nil
}

// progress attaches a progress bar to the session until the returned
// function is called.
func (j *job) progress(desc string, total int) func() {
	return track(j.session, desc, total)
}

func track(s *pipeline.Session, desc string, total int) func() {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+desc+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	s.OnProgress = func(string) { _ = bar.Add(1) }
	return func() {
		s.OnProgress = nil
		_ = bar.Finish()
	}
}

func (j *job) detect(ctx context.Context) error {
	s := j.session
	done := j.progress("Detecting interfaces", s.Raw().Len())
	results, err := s.DetectInterfaces(ctx)
	done()
	if err != nil {
		return err
	}

	if j.writer != nil {
		for _, r := range results {
			if err := j.writer.WriteInterface(r, s.Analyte.Name); err != nil {
				return fmt.Errorf("failed to write interface %s: %w", r.Key, err)
			}
		}
	}
	printInterfaces(os.Stdout, results)
	return nil
}

func (j *job) calibrate() error {
	set := j.session.Calibrate()
	if j.writer != nil {
		if err := j.writer.WriteCalibrations(set); err != nil {
			return fmt.Errorf("failed to write calibrations: %w", err)
		}
	}
	printCalibrations(os.Stdout, set)
	return nil
}

func (j *job) penetrate(ctx context.Context) error {
	s := j.session
	threshold := s.Threshold()
	done := j.progress(fmt.Sprintf("Penetration at %g %s", threshold, s.Analyte.Unit), s.Store().Len())
	results, err := s.Penetration(ctx, threshold)
	done()
	if err != nil {
		return err
	}

	summaries := s.Summaries()
	if j.writer != nil {
		for _, r := range results {
			if err := j.writer.WriteFit(pipeline.StagePenetration, r.Key, s.Analyte.Name, r.Fit); err != nil {
				return fmt.Errorf("failed to write fit %s: %w", r.Key, err)
			}
		}
		if err := j.writer.WritePenetration(results, s.Exclusions); err != nil {
			return fmt.Errorf("failed to write penetration: %w", err)
		}
		if err := j.writer.WriteSummaries(summaries); err != nil {
			return fmt.Errorf("failed to write summaries: %w", err)
		}
	}
	printSummaries(os.Stdout, summaries, s.Analyte.Unit)
	return nil
}

func (j *job) drift(path string) error {
	if path == "" {
		return fmt.Errorf("no package file given: %w", core.ErrMissingInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open package file: %w", err)
	}
	pkgs, err := meta.ReadPackages(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read package file: %w", err)
	}

	done := j.progress("Correcting drift", len(pkgs))
	results, err := j.session.Drift(pkgs)
	done()
	if err != nil {
		return err
	}

	if j.writer != nil {
		for _, r := range results {
			if err := j.writer.WriteDrift(r); err != nil {
				return fmt.Errorf("failed to write drift of package %s: %w", r.Package, err)
			}
		}
	}
	printDrift(os.Stdout, results)
	return nil
}

// finish reports the failures and finalizes the output database.
func (j *job) finish() error {
	fails := j.session.Failures()
	printFailures(os.Stdout, &fails)

	if j.writer == nil {
		return nil
	}
	if err := j.writer.WriteFailures(&fails); err != nil {
		return fmt.Errorf("failed to write failures: %w", err)
	}
	j.writer.Description = description
	j.writer.Mode = &j.session.Mode
	if err := j.writer.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}
	fmt.Printf("Output: %s\n", outputFile)
	return nil
}

// close releases the database after an error; it is a no-op after finish.
func (j *job) close() {
	if j.writer != nil {
		_ = j.writer.Close()
	}
}
