package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	cfgpkg "github.com/KaramelBytes/labdash/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set labdash configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(w, "No config loaded")
			return nil
		}
		fmt.Fprintf(w, "adlbc_path: %s\n", cfg.AdlbcPath)
		fmt.Fprintf(w, "adsl_path: %s\n", cfg.AdslPath)
		fmt.Fprintf(w, "watch_data: %t\n", cfg.WatchData)
		fmt.Fprintf(w, "listen_addr: %s\n", cfg.ListenAddr)
		fmt.Fprintf(w, "shutdown_timeout_sec: %d\n", cfg.ShutdownTimeoutSec)
		fmt.Fprintf(w, "figure_cache_size: %d\n", cfg.FigureCacheSize)
		fmt.Fprintf(w, "chart_width: %d\n", cfg.ChartWidth)
		fmt.Fprintf(w, "chart_height: %d\n", cfg.ChartHeight)
		fmt.Fprintf(w, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(w, "log_format: %s\n", cfg.LogFormat)
		if cfg.S3Region != "" {
			fmt.Fprintf(w, "s3_region: %s\n", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			fmt.Fprintf(w, "s3_endpoint: %s\n", cfg.S3Endpoint)
			fmt.Fprintf(w, "s3_path_style: %t\n", cfg.S3PathStyle)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// start from the file, not from flag overrides
		c, err := cfgpkg.Load(cfgFile)
		if errors.Is(err, fs.ErrNotExist) {
			c, err = cfgpkg.Defaults(), nil
		}
		if err != nil {
			return err
		}
		if err := c.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg = c
		okf(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
