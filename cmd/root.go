package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/labdash/internal/config"
	"github.com/KaramelBytes/labdash/internal/dataset"
	applog "github.com/KaramelBytes/labdash/internal/log"
	"github.com/KaramelBytes/labdash/internal/utils"
	"github.com/KaramelBytes/labdash/internal/views"
)

var (
	// Global flags
	cfgFile   string
	debug     bool
	flagAdlbc string
	flagAdsl  string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "labdash",
	Short: "labdash: clinical-trial lab results dashboard",
	Long: `labdash loads the adlbc lab results and adsl subject tables of a clinical trial
and serves four interactive views of them: a subject series plot, a box plot per
visit, a scatter plot of two parameters and a waterfall of percentage change.
Figures can also be rendered to SVG or PNG and their shaped tables exported.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.labdash/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagAdlbc, "adlbc", "", "lab results source: path or s3:// URI (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAdsl, "adsl", "", "subject-level source: path or s3:// URI (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults so config-independent commands still run
		warnf(os.Stderr, "Warning: failed to load config: %v", err)
		c = cfgpkg.Defaults()
	}
	cfg = c

	// Apply CLI overrides if provided
	if flagAdlbc != "" {
		cfg.AdlbcPath = flagAdlbc
	}
	if flagAdsl != "" {
		cfg.AdslPath = flagAdsl
	}
	if _, err := applog.Setup(cfg.LogLevel, cfg.LogFormat, debug); err != nil {
		warnf(os.Stderr, "Warning: %v", err)
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
)

// okf prints a success line.
func okf(w io.Writer, format string, args ...any) {
	_, _ = green.Fprint(w, "✓ ")
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

// warnf prints a warning line.
func warnf(w io.Writer, format string, args ...any) {
	_, _ = yellow.Fprint(w, "⚠ ")
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func sources() dataset.Sources {
	return dataset.Sources{
		Labs:     utils.ExpandHome(cfg.AdlbcPath),
		Subjects: utils.ExpandHome(cfg.AdslPath),
		S3: dataset.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	}
}

func loadDataset(ctx context.Context) (*dataset.Dataset, error) {
	src := sources()
	if src.Labs == "" || src.Subjects == "" {
		return nil, fmt.Errorf("both --adlbc and --adsl (or adlbc_path and adsl_path in config) are required")
	}
	return dataset.LoadDataset(ctx, src)
}

// parseSelection reads key=value arguments into a view selection.
func parseSelection(args []string) (views.Selection, error) {
	sel := views.Selection{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid input %q (use key=value)", a)
		}
		sel[k] = v
	}
	return sel, nil
}
