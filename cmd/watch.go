package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/assetcache/internal/app"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/presentation"
	"github.com/zjrosen/assetcache/internal/scan"
	"github.com/zjrosen/assetcache/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan the root, then keep artifacts current as files change",
	Long: `Scan the root directory, then watch it: new files are discovered, edited
files are rebuilt. A report is printed after every batch of changes. Stop
with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.Watch.Enabled {
			return fmt.Errorf("watching is disabled (watch.enabled: false)")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			err := a.Watch(ctx, func(b watcher.Batch, rep scan.Report) {
				log.Debug(log.CatWatcher, "Batch handled", "dir", b.Dir, "appeared", len(b.Appeared), "changed", len(b.Changed))
				if err := out.FormatReport(rep); err != nil {
					log.ErrorErr(log.CatWatcher, "Writing report failed", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
