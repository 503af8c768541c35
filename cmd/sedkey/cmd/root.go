// Package cmd provides CLI command implementations
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChrisMcGann/SedKey/pkg/config"
)

var (
	// Global flags
	cfgFile     string
	inputFile   string
	outputFile  string
	analyteName string
	analytesCSV string
	exclusions  string
	description string

	// v holds defaults, config file, environment and bound flags
	v = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "sedkey",
	Short: "SedKey - Sediment microsensor profile analysis tool",
	Long: `SedKey analyses microsensor depth profiles measured in sediment cores
and writes the results to a SQLite database.

Pipeline stages:
- Sediment-water interface detection and depth alignment (sigmoid fit)
- Two-point or external calibration of the raw signal
- Penetration depth at a concentration threshold, averaged per core
- Total sulfide from correlated H2S and pH profiles
- Sensor drift correction across measurement packages`,
	Version:           "0.3.0",
	PersistentPreRunE: initConfig,
	SilenceUsage:      true,
}

// Execute runs the root command with a cancellable context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(swiCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(penetrationCmd)
	rootCmd.AddCommand(sulfideCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(runCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./sedkey.yaml or $HOME/.config/sedkey/sedkey.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	pf.StringVarP(&inputFile, "in", "i", "", "Measurement CSV (core,sample,depth,signal[,...])")
	pf.StringVarP(&outputFile, "out", "o", "", "Output SQLite database (optional)")
	pf.StringVarP(&analyteName, "analyte", "a", "", "Analyte of the measurements (default depends on the command)")
	pf.StringVar(&analytesCSV, "analytes", "", "CSV with extra analyte definitions (name,unit,threshold)")
	pf.StringVar(&exclusions, "exclusions", "", "CSV of samples excluded from core averages (analyte,core,sample)")
	pf.StringVar(&description, "description", "", "Free text stored in the output header")

	pf.Int("workers", 4, "Number of profiles fitted concurrently")
	pf.Float64("step", 1, "Resampling grid step of fitted curves, µm")
	pf.Float64("threshold", 0, "Penetration threshold in the analyte unit (0 = analyte default)")
	pf.String("scope", "per-core", "Calibration scope: per-core, single-core or external")
	pf.String("reference", "", "Reference core for single-core calibration")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("workers", pf.Lookup("workers"))
	_ = v.BindPFlag("fit.step", pf.Lookup("step"))
	_ = v.BindPFlag("penetration.threshold", pf.Lookup("threshold"))
	_ = v.BindPFlag("calibration.scope", pf.Lookup("scope"))
	_ = v.BindPFlag("calibration.reference", pf.Lookup("reference"))
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sedkey"))
		}
		v.SetConfigName("sedkey")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, defaults apply
	}

	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("loaded config", "file", used)
	}
	return nil
}

func setupLogging() error {
	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	switch format {
	case "console":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
