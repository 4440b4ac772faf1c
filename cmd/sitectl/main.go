// Command sitectl manages the birthday site's content from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"birthdaysite/config"
	"birthdaysite/internal/app"
	"birthdaysite/internal/content/model"
	"birthdaysite/internal/content/repository"
	"birthdaysite/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	cachePath string
	logLevel  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitectl",
		Short: "Manage birthday site content",
		Long: `Export, import and seed the birthday site's content document, and
list the recorded quiz results.

Configuration is read from .env and the environment, the same way the
server reads it. --cache overrides CACHE_PATH.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWriter(logLevel, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&cachePath, "cache", "", "local cache file (overrides CACHE_PATH)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	root.AddCommand(exportCmd(), importCmd(), seedCmd(), clearCacheCmd(), syncCmd(), quizResultsCmd())
	return root
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current content document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				a.Session.Load(cmd.Context())
				data, err := a.Session.Export()
				if err != nil {
					return err
				}
				if out == "-" {
					_, err = cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Data exported to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", model.ExportFilename, "output file, - for stdout")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the content document with an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				a.Session.Load(cmd.Context())
				if err := a.Session.Import(cmd.Context(), data); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Data imported successfully!")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the built-in default document to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.Remote == nil {
					return fmt.Errorf("no remote store configured")
				}
				if !force {
					_, _, err := a.Remote.Get(cmd.Context(), repository.PathWebsiteData)
					switch {
					case err == nil:
						return fmt.Errorf("remote store already has content, use --force to overwrite")
					case !errors.Is(err, repository.ErrNotFound):
						return fmt.Errorf("checking remote store: %w", err)
					}
				}
				if err := a.Session.Commit(cmd.Context(), model.Default()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Seeded remote store with default data")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing content")
	return cmd
}

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove the cached content document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Session.ClearCache(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Local cache cleared")
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the remote store was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				replay := a.Replayer()
				if replay == nil {
					return fmt.Errorf("no remote store configured")
				}
				done, remaining, err := a.Queue.Drain(cmd.Context(), replay)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d offline actions, %d pending\n", done, remaining)
				return nil
			})
		},
	}
}

func quizResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quiz-results",
		Short: "List recorded quiz attempts, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				results, err := a.Session.QuizResults(cmd.Context())
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No quiz results yet")
					return nil
				}
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %d/%d (%d%%)\n",
						time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339), r.Score, r.TotalQuestions, r.Percentage)
				}
				return nil
			})
		},
	}
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cachePath != "" {
		cfg.CachePath = cachePath
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}
