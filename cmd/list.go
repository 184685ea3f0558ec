package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/labdash/internal/views"
)

var listCmd = &cobra.Command{
	Use:       "list <params|subjects|arms|views>",
	Short:     "List dropdown options or the available views",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"params", "subjects", "arms", "views"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if args[0] == "views" {
			for _, s := range views.Default().Specs() {
				ids := make([]string, len(s.Inputs))
				for i, in := range s.Inputs {
					ids[i] = in.ID + "=" + in.Default
				}
				fmt.Fprintf(w, "- %s: %s (%s) [%s]\n", s.ID, s.Name, s.Path, strings.Join(ids, " "))
			}
			return nil
		}
		ds, err := loadDataset(cmd.Context())
		if err != nil {
			return err
		}
		var items []string
		switch args[0] {
		case "params":
			items = ds.ParamCodes()
		case "subjects":
			items = ds.SubjectIDs()
		case "arms":
			items = ds.Arms()
		}
		if len(items) == 0 {
			fmt.Fprintf(w, "(no %s)\n", args[0])
			return nil
		}
		for _, it := range items {
			fmt.Fprintf(w, "- %s\n", it)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
