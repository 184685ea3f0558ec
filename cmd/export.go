package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/labdash/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <view> [input=value ...] -o <file>",
	Short: "Export a view's shaped table",
	Long: `export writes the table behind a view's figure. The format follows the
output suffix: .csv, .tsv, .parquet, .xlsx or .db, with an optional .gz,
.bz2, .xz or .zst on the text formats. Workbooks and SQLite files also
receive the view's secondary table when it has one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOutput == "" {
			return errors.New("--output is required")
		}
		format, _, err := export.DetectFormat(exportOutput)
		if err != nil {
			return err
		}
		res, err := runView(cmd, args)
		if err != nil {
			return err
		}
		if res.Shaped == nil {
			return fmt.Errorf("%s: nothing to export for this selection", args[0])
		}
		sheets := []export.Sheet{{Name: args[0], Table: res.Shaped.Table}}
		if res.Shaped.Extra != nil && format.Multi() {
			sheets = append(sheets, export.Sheet{Name: args[0] + "_extra", Table: res.Shaped.Extra})
		}
		if err := export.WriteFile(cmd.Context(), exportOutput, sheets...); err != nil {
			return err
		}
		okf(cmd.OutOrStdout(), "Exported %d rows to %s", res.Shaped.Table.Len(), exportOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file; format from suffix")
}
