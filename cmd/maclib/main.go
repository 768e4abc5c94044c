// Package main provides the maclib binary entry point.
// maclib maintains the MAC standards library: a JSON document of clusters and
// weighted standards, with backups, import/export and an HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/maclib/config"
	"github.com/c360studio/maclib/library"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "maclib"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "MAC standards library maintenance",
		Long: `maclib maintains the MAC standards library.

It provides:
- Standards and cluster maintenance with dense cluster ordering
- Timestamped backups with retention, restore and upload
- Filtered export and merge-style import
- An HTTP API with change events over NATS`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Library directory (overrides config and "+config.EnvDataDir+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(opts),
		infoCmd(opts),
		validateCmd(opts),
		backupCmd(opts),
		exportCmd(opts),
		importCmd(opts),
		cleanupCmd(opts),
		configCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine-readable.
func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	logger := newLogger(o.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.dataDir != "" {
		cfg.Storage.BaseDir = o.dataDir
	}
	return cfg, logger, nil
}

// withApp loads configuration, starts an App and runs fn against it.
func (o *rootOptions) withApp(ctx context.Context, withNATS bool, fn func(ctx context.Context, app *App) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}

	app := NewApp(cfg, logger)
	defer app.Shutdown()
	if err := app.Start(ctx, withNATS); err != nil {
		return err
	}
	return fn(ctx, app)
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		addr   string
		noNATS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return opts.withApp(ctx, !noNATS, func(ctx context.Context, app *App) error {
				if addr != "" {
					app.cfg.HTTP.Addr = addr
				}
				app.logger.Info("maclib ready",
					"version", Version,
					"base_dir", app.store.BaseDir(),
					"addr", app.cfg.HTTP.Addr)
				return app.Serve(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&noNATS, "no-nats", false, "Run without NATS events and the KV mirror")
	return cmd
}

func infoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show library version and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
				lib := app.catalog.Library()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Library:       %s\n", app.store.LibraryPath())
				fmt.Fprintf(out, "Version:       %s\n", lib.Version)
				fmt.Fprintf(out, "Last modified: %s\n", lib.LastModified)
				fmt.Fprintf(out, "Clusters:      %d\n", len(lib.Clusters))
				fmt.Fprintf(out, "Standards:     %d\n", len(lib.Standards))
				return nil
			})
		},
	}
}

func validateCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Audit the library for broken invariants and data-quality issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
				report := app.catalog.Validate()
				out := cmd.OutOrStdout()

				if asJSON {
					if err := writeDocument(out, report); err != nil {
						return err
					}
				} else {
					for _, f := range report.Findings {
						fmt.Fprintln(out, f.String())
					}
					fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(report.Errors()), len(report.Warnings()))
				}

				if report.HasErrors() {
					return fmt.Errorf("library has %d error(s)", len(report.Errors()))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func backupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore and delete backups",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create a timestamped backup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					name, err := app.catalog.CreateBackup(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backups, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					backups, err := app.catalog.ListBackups()
					if err != nil {
						return err
					}
					for _, b := range backups {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", b.Filename, b.Modified.Format("2006-01-02 15:04:05"), b.Size)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "restore <filename>",
			Short: "Restore the library from a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					if err := app.catalog.RestoreFromBackup(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "restore-file <path>",
			Short: "Restore the library from a document on disk",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					if err := app.catalog.RestoreFromUpload(ctx, f); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Restored from %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <filename>",
			Short: "Delete one backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					return app.catalog.DeleteBackup(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "delete-all",
			Short: "Delete every backup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
					n, err := app.catalog.DeleteAllBackups(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d backup(s)\n", n)
					return nil
				})
			},
		},
	)
	return cmd
}

func exportCmd(opts *rootOptions) *cobra.Command {
	var (
		clusters     []string
		standards    []string
		noRationales bool
		out          string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a filtered snapshot of the library",
		Long: `Export writes the library, optionally filtered by cluster and standard IDs.
With --out the document is written to the exports directory; otherwise it is
printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := library.ExportFilter{
				ClusterIDs:        clusters,
				StandardIDs:       standards,
				IncludeRationales: !noRationales,
			}
			return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
				if out != "" {
					path, err := app.catalog.ExportToFile(out, filter)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
					return nil
				}
				return writeDocument(cmd.OutOrStdout(), app.catalog.Export(filter))
			})
		},
	}

	cmd.Flags().StringSliceVar(&clusters, "cluster", nil, "Only standards in these clusters")
	cmd.Flags().StringSliceVar(&standards, "standard", nil, "Only these standards")
	cmd.Flags().BoolVar(&noRationales, "no-rationales", false, "Omit rationales")
	cmd.Flags().StringVarP(&out, "out", "o", "", "File name in the exports directory")
	return cmd
}

func importCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge clusters and standards from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				report, err := app.importer.Import(ctx, f)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), report)
			})
		},
	}
}

func cleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Canonicalize impacted emotions on every standard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), false, func(ctx context.Context, app *App) error {
				changes, err := app.catalog.CleanupEmotions(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range changes {
					fmt.Fprintf(out, "%s: %v -> %v\n", c.ID, c.Before, c.After)
				}
				fmt.Fprintf(out, "%d standard(s) updated\n", len(changes))
				return nil
			})
		},
	}
}

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(newLogger(opts.logLevel)).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}

func writeDocument(w io.Writer, v any) error {
	data, err := library.MarshalDocument(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
