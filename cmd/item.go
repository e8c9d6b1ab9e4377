package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/assetcache/internal/app"
	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/presentation"
)

var showCmd = &cobra.Command{
	Use:   "show <item>",
	Short: "Load one item and print its state and messages",
	Long: `Load one item and print its identifier, path, state, and messages.

<item> is an identifier, a unique identifier prefix (at least 4 characters),
or a path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := a.Resolve(ctx, args[0])
			if id == "" {
				return err
			}
			// Load failures are reported as messages below.
			_, _ = a.Pipeline().Acquire(ctx, id)
			item, err := a.Item(id)
			if err != nil {
				return err
			}
			return out.FormatItem(item, a.Pipeline().Messages(id))
		})
	},
}

var createKind string

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new item from its kind's default source",
	Long: `Write the default source for a kind to <path>, register it under a fresh
identifier, and load it. The kind defaults to the extension of <path>.

Examples:
  assetcache create props/box.obj
  assetcache create props/box --kind obj`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := createKind
		if kind == "" {
			kind = binding.ExtensionOf(args[0])
		}
		if kind == "" {
			return fmt.Errorf("cannot infer kind from %q, pass --kind", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, _, err := a.Pipeline().CreateDefault(ctx, kind, args[0])
			if err != nil {
				return err
			}
			item, err := a.Item(id)
			if err != nil {
				return err
			}
			return out.FormatItem(item, a.Pipeline().Messages(id))
		})
	},
}

var (
	editFrom   string
	editCommit bool
)

var editCmd = &cobra.Command{
	Use:   "edit <item> --from <file>",
	Short: "Rebuild an item from new source text",
	Long: `Rebuild an item's artifact from source text read from --from ("-" reads
stdin). The file on disk is untouched unless --commit is given; without it the
diff that committing would write is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if editFrom == "" {
			return fmt.Errorf("--from is required")
		}
		src, err := readInput(cmd, editFrom)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := a.Resolve(ctx, args[0])
			if id == "" {
				return err
			}
			p := a.Pipeline()
			if _, err := p.OnSourceEdited(ctx, id, src); err != nil {
				_ = out.FormatMessages(p.Messages(id))
				return err
			}
			if editCommit {
				if err := p.CommitEdit(ctx, id); err != nil {
					return err
				}
				item, err := a.Item(id)
				if err != nil {
					return err
				}
				return out.FormatItem(item, nil)
			}
			res, err := p.Diff(ctx, id)
			if err != nil {
				return err
			}
			return out.FormatDiff(res)
		})
	},
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		buf, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return buf, nil
	}
	data, err := os.ReadFile(name) //nolint:gosec // G304: path is a user argument
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

var commitCmd = &cobra.Command{
	Use:   "commit <item>",
	Short: "Write an item's artifact back to its source file",
	Long: `Unprocess the item's artifact and write the result to its source file
atomically. For a freshly loaded item this rewrites the source in canonical
form; see "assetcache diff" for what would change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := loadArg(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.Pipeline().CommitEdit(ctx, id); err != nil {
				return err
			}
			item, err := a.Item(id)
			if err != nil {
				return err
			}
			return out.FormatItem(item, nil)
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <item>",
	Short: "Show what committing an item would change on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := loadArg(ctx, a, args[0])
			if err != nil {
				return err
			}
			res, err := a.Pipeline().Diff(ctx, id)
			if err != nil {
				return err
			}
			return out.FormatDiff(res)
		})
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload <item>",
	Short: "Rebuild an item from the source on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := a.Resolve(ctx, args[0])
			if id == "" {
				return err
			}
			_, err = a.Pipeline().Reload(ctx, id)
			item, itemErr := a.Item(id)
			if itemErr != nil {
				return itemErr
			}
			if fmtErr := out.FormatItem(item, a.Pipeline().Messages(id)); fmtErr != nil {
				return fmtErr
			}
			return err
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <item>",
	Aliases: []string{"remove"},
	Short:   "Delete an item's source file and forget its identifier",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, _ *presentation.Formatter) error {
			id, err := a.Resolve(ctx, args[0])
			if id == "" {
				return err
			}
			if err := a.Pipeline().Remove(ctx, id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return err
		})
	},
}

var mvCmd = &cobra.Command{
	Use:     "mv <item> <new-path>",
	Aliases: []string{"rename"},
	Short:   "Move an item's source file, keeping its identifier",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out *presentation.Formatter) error {
			id, err := a.Resolve(ctx, args[0])
			if id == "" {
				return err
			}
			if err := a.Pipeline().Rename(ctx, id, args[1]); err != nil {
				return err
			}
			item, err := a.Item(id)
			if err != nil {
				return err
			}
			return out.FormatItem(item, nil)
		})
	},
}

var (
	exportPretty bool
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <item>",
	Short: "Print an item's artifact as an asset envelope",
	Long: `Serialize an item's artifact as an asset envelope. The output can be saved
with a .asset extension and tracked like any other source.

Examples:
  assetcache export props/crate.obj -o props/crate.asset`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, _ *presentation.Formatter) error {
			id, err := loadArg(ctx, a, args[0])
			if err != nil {
				return err
			}
			pretty := exportPretty || (!cmd.Flags().Changed("pretty") && a.Config().Envelope.Pretty)
			data, err := a.Pipeline().Export(ctx, id, pretty)
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(exportOutput, data, 0o644) //nolint:gosec // G306: exported sources are world readable like other sources
		})
	},
}

// loadArg resolves arg and makes sure its artifact is loaded.
func loadArg(ctx context.Context, a *app.App, arg string) (asset.ID, error) {
	id, err := a.Resolve(ctx, arg)
	if id == "" {
		return "", err
	}
	if _, err := a.Pipeline().Acquire(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func init() {
	createCmd.Flags().StringVarP(&createKind, "kind", "k", "", "kind extension (default: extension of <path>)")
	editCmd.Flags().StringVarP(&editFrom, "from", "f", "", `file with the new source ("-" for stdin)`)
	editCmd.Flags().BoolVar(&editCommit, "commit", false, "write the rebuilt artifact back to disk")
	exportCmd.Flags().BoolVar(&exportPretty, "pretty", false, "indent the envelope (default: envelope.pretty)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")

	rootCmd.AddCommand(showCmd, createCmd, editCmd, commitCmd, diffCmd, reloadCmd, rmCmd, mvCmd, exportCmd)
}
