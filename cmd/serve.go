package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/server"
	"github.com/KaramelBytes/labdash/internal/views"
)

var (
	serveAddr      string
	serveWatch     bool
	serveCacheSize int
)

const watchDebounce = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the dataset and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ds, err := loadDataset(ctx)
		if err != nil {
			return err
		}
		for _, w := range dataset.CheckInvariants(ds) {
			slog.Warn("dataset check", "detail", w)
		}

		opt := server.Options{
			Addr:            cfg.ListenAddr,
			CacheSize:       cfg.FigureCacheSize,
			ChartWidth:      cfg.ChartWidth,
			ChartHeight:     cfg.ChartHeight,
			ShutdownTimeout: time.Duration(cfg.ShutdownTimeoutSec) * time.Second,
			Logger:          slog.Default(),
		}
		if cmd.Flags().Changed("addr") {
			opt.Addr = serveAddr
		}
		if cmd.Flags().Changed("cache-size") {
			opt.CacheSize = serveCacheSize
		}

		store := dataset.NewStore(ds, slog.Default())
		srv, err := server.New(store, views.Default(), opt)
		if err != nil {
			return err
		}

		watch := cfg.WatchData
		if cmd.Flags().Changed("watch") {
			watch = serveWatch
		}
		if watch {
			go func(ctx context.Context) {
				if err := store.Watch(ctx, watchDebounce); err != nil {
					slog.Warn("data watch stopped", "error", err)
				}
			}(ctx)
		}

		okf(cmd.OutOrStdout(), "Serving %d lab rows for %d subjects on http://%s",
			ds.Labs.Len(), ds.Subjects.Len(), opt.Addr)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8050", "listen address (overrides listen_addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the dataset when local source files change")
	serveCmd.Flags().IntVar(&serveCacheSize, "cache-size", 256, "number of computed figures to keep")
}
