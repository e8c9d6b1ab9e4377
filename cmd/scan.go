package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/assetcache/internal/app"
	"github.com/zjrosen/assetcache/internal/presentation"
)

var scanStrict bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Load every tracked file under the root",
	Long: `Walk the root directory, register every file of a known kind, and derive its
artifact. Files whose source fails to process stay registered and are listed
with their error.

Examples:
  # Scan the configured root
  assetcache scan

  # Scan another directory and fail when any file is broken
  assetcache scan --root ./art --strict`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			rep, err := a.Populate(ctx)
			if err != nil {
				return err
			}
			if err := out.FormatReport(rep); err != nil {
				return err
			}
			if scanStrict && len(rep.Failures) > 0 {
				return fmt.Errorf("%d files failed to load", len(rep.Failures))
			}
			return nil
		})
	},
}

var lsNoScan bool

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered items",
	Long: `List every registered item with its identifier, kind, and load state.

The tree is scanned first so states are current. With --no-scan only the
location index is read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			if !lsNoScan {
				if _, err := a.Populate(ctx); err != nil {
					return err
				}
			}
			return out.FormatItems(a.Items())
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Scan the tree and print every load error",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			if _, err := a.Populate(ctx); err != nil {
				return err
			}
			return out.FormatMessages(a.Pipeline().AllMessages())
		})
	},
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the file kinds assetcache derives artifacts from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App, out *presentation.Formatter) error {
			return out.FormatKinds(presentation.FromBindings(a.Bindings().Bindings()))
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false, "exit with an error when any file fails to load")
	lsCmd.Flags().BoolVar(&lsNoScan, "no-scan", false, "list index records without scanning")
	rootCmd.AddCommand(scanCmd, lsCmd, messagesCmd, kindsCmd)
}
