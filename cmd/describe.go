package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/labdash/internal/analysis"
	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/utils"
)

var (
	descOutputPath string
	descSampleRows int
	descMaxRows    int
	descGroupBy    []string
	descCorr       bool
	descOutliers   bool
	descOutlierThr float64
	descSheet      string
)

var describeCmd = &cobra.Command{
	Use:   "describe [adlbc|adsl|<file>]",
	Short: "Profile a source table and print a Markdown summary",
	Long: `describe profiles one table: column kinds, missing values, numeric statistics,
robust outlier counts and optional group-by and correlation sections.
With no argument it describes adlbc.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "adlbc"
		if len(args) == 1 {
			target = args[0]
		}
		var path string
		var lopt dataset.Options
		switch target {
		case "adlbc":
			path, lopt = sources().Labs, dataset.LabOptions()
		case "adsl":
			path, lopt = sources().Subjects, dataset.SubjectOptions()
		default:
			path = utils.ExpandHome(target)
		}
		if path == "" {
			return fmt.Errorf("no source configured for %s", target)
		}
		lopt.S3 = sources().S3
		lopt.Sheet = descSheet

		t, err := dataset.Load(cmd.Context(), path, lopt)
		if err != nil {
			return err
		}

		opt := analysis.DefaultOptions()
		if descSampleRows > 0 {
			opt.SampleRows = descSampleRows
		}
		if descMaxRows > 0 {
			opt.MaxRows = descMaxRows
		}
		opt.GroupBy = descGroupBy
		opt.Correlations = descCorr
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = descOutliers
		}
		if descOutlierThr > 0 {
			opt.OutlierThreshold = descOutlierThr
		}
		rep, err := analysis.Profile(path, t, opt)
		if err != nil {
			return err
		}
		md := rep.Markdown()

		if descOutputPath != "" {
			if err := utils.SafeWriteFile(descOutputPath, []byte(md)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			okf(cmd.OutOrStdout(), "Wrote summary to %s", descOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "optional path to write the summary (Markdown)")
	describeCmd.Flags().IntVar(&descSampleRows, "sample-rows", 5, "number of sample rows to include")
	describeCmd.Flags().IntVar(&descMaxRows, "max-rows", 0, "maximum rows to process (0 = unlimited)")
	describeCmd.Flags().StringSliceVar(&descGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	describeCmd.Flags().BoolVar(&descCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	describeCmd.Flags().BoolVar(&descOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	describeCmd.Flags().StringVar(&descSheet, "sheet", "", "XLSX: sheet name to read (default first sheet)")
}
