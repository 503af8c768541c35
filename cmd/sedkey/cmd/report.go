package cmd

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/core"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
	"github.com/ChrisMcGann/SedKey/pkg/penetration"
	"github.com/ChrisMcGann/SedKey/pkg/sulfide"
	"github.com/ChrisMcGann/SedKey/pkg/swi"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// table writes a styled header and tab-aligned rows.
func table(w io.Writer, title string, header []string, rows [][]string) {
	fmt.Fprintln(w, titleStyle.Render(title))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	cells := make([]string, len(header))
	rules := make([]string, len(header))
	for i, h := range header {
		cells[i] = headerStyle.Render(h)
		rules[i] = strings.Repeat("-", max(len(h), 8))
	}
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
}

func num(v float64, precision int) string {
	if math.IsNaN(v) {
		return mutedStyle.Render("-")
	}
	return fmt.Sprintf("%.*f", precision, core.RoundFloat(v, precision))
}

func printInterfaces(w io.Writer, results []swi.Result) {
	rows := make([][]string, 0, len(results))
	found := 0
	for _, r := range results {
		status := r.State.String()
		switch {
		case !r.Found:
			status = errorStyle.Render("not found")
		case len(r.Warnings) > 0:
			status = warnStyle.Render(strings.Join(r.Warnings, "; "))
		}
		if r.Found {
			found++
		}
		rows = append(rows, []string{r.Key.Core, r.Key.Sample, num(r.Depth, 0), num(r.Fit.RMSE, 2), status})
	}
	table(w, fmt.Sprintf("Interfaces (%d of %d found)", found, len(results)),
		[]string{"Core", "Sample", "Depth µm", "RMSE", "Status"}, rows)
}

func printCalibrations(w io.Writer, set calibrate.Set) {
	cores := make([]string, 0, len(set.ByCore))
	for c := range set.ByCore {
		cores = append(cores, c)
	}
	sort.Strings(cores)

	rows := make([][]string, 0, len(cores))
	for _, c := range cores {
		cal := set.ByCore[c]
		ref := cal.Reference
		if ref == "" {
			ref = mutedStyle.Render("-")
		}
		rows = append(rows, []string{c, num(cal.Slope, 4), num(cal.Intercept, 2), cal.Unit, ref})
	}
	table(w, "Calibration ("+set.Mode.Scope.String()+")",
		[]string{"Core", "Slope", "Intercept", "Unit", "Anchors from"}, rows)
}

func printSummaries(w io.Writer, summaries []penetration.Summary, unit string) {
	var rows [][]string
	for _, s := range summaries {
		rows = append(rows, []string{
			headerStyle.Render(s.Core), fmt.Sprintf("n=%d", s.N),
			num(s.DepthMean, 0) + " ± " + num(s.DepthStd, 0),
			num(s.ConcMean, 3) + " ± " + num(s.ConcStd, 3),
		})
		for _, r := range s.Rows {
			sample := r.Sample
			if r.Excluded {
				sample = mutedStyle.Render(sample + " (excluded)")
			}
			if !r.Found {
				sample = warnStyle.Render(r.Sample + " (no crossing)")
			}
			rows = append(rows, []string{"", sample, num(r.Depth, 0), num(r.Concentration, 3)})
		}
	}
	title := "Penetration"
	if len(summaries) > 0 {
		title = fmt.Sprintf("Penetration at %g %s", summaries[0].Threshold, unit)
	}
	table(w, title, []string{"Core", "Sample", "Depth µm", "Concentration"}, rows)
}

func printDrift(w io.Writer, results []drift.Result) {
	var rows [][]string
	for _, r := range results {
		for i, key := range r.Members {
			rows = append(rows, []string{
				r.Package, r.Kind.String(), r.Method.String(), key.String(),
				num(r.Observed[i], 2), num(r.Corrections[i], 2), num(r.ReducedChiSq, 3),
			})
		}
	}
	table(w, "Drift correction", []string{"Package", "Fit", "Method", "Profile", "Water mean", "Correction", "χ²/ν"}, rows)
}

func printSulfide(w io.Writer, results []sulfide.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		peak := math.NaN()
		if len(r.TotalFloored) > 0 {
			peak = r.TotalFloored[0]
			for _, v := range r.TotalFloored[1:] {
				peak = math.Max(peak, v)
			}
		}
		rows = append(rows, []string{r.H2SKey.String(), r.PHKey.String(), fmt.Sprintf("%d", len(r.Depths)), num(peak, 2)})
	}
	table(w, "Total sulfide", []string{"H2S", "pH", "Rows", "Max ΣS"}, rows)
}

func printFailures(w io.Writer, fails *core.Failures) {
	if fails.Len() == 0 {
		return
	}
	rows := make([][]string, 0, fails.Len())
	for _, f := range fails.List() {
		kind := string(f.Kind)
		if f.Kind == core.KindQuality {
			kind = warnStyle.Render(kind)
		} else {
			kind = errorStyle.Render(kind)
		}
		rows = append(rows, []string{f.Stage, kind, f.Key.String(), f.Err.Error()})
	}
	table(w, fmt.Sprintf("Failures (%d)", fails.Len()), []string{"Stage", "Kind", "Profile", "Error"}, rows)
}
