package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/pimdoc/internal/config"
	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/lock"
	"github.com/everstacklabs/pimdoc/internal/pipeline"
	"github.com/everstacklabs/pimdoc/internal/render"
	_ "github.com/everstacklabs/pimdoc/internal/render/storage"    // register storage renderer
	_ "github.com/everstacklabs/pimdoc/internal/render/wikimarkup" // register wiki markup renderer
	"github.com/everstacklabs/pimdoc/internal/server"
	"github.com/everstacklabs/pimdoc/internal/store"
	"github.com/everstacklabs/pimdoc/internal/validate"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pimdoc",
		Short:         "Publish PIM catalog snapshots and diffs to Confluence",
		Long:          "Renders catalog diffs and snapshots stored in PostgreSQL as wiki pages and upserts them by title.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		diffCmd(),
		snapshotCmd(),
		inspectCmd(),
		validateCmd(),
		serveCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var exit *pipeline.ExitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(pipeline.ExitCode(err))
	}
}

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <diff-id>",
		Short: "Render a stored diff and optionally publish it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			publish, _ := cmd.Flags().GetBool("publish")
			printBody, _ := cmd.Flags().GetBool("print")
			exitOnChanges, _ := cmd.Flags().GetBool("exit-code")

			p, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.Diff(cmd.Context(), id, publish)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s → %s\n", res.Before, res.After)
			fmt.Fprintln(out, diff.RenderSummary(res.Report))
			printPage(out, res.Page, printBody)
			if res.Location != nil {
				fmt.Fprintf(out, "Published %q (page %s, version %d): %s\n",
					res.Location.Title, res.Location.PageID, res.Location.Version, res.Location.URL)
			}

			if exitOnChanges && res.Report.HasChanges() {
				return &pipeline.ExitError{Code: pipeline.ExitChanges}
			}
			return nil
		},
	}

	cmd.Flags().Bool("publish", false, "Upsert the page to the wiki")
	cmd.Flags().Bool("print", false, "Print the rendered page body")
	cmd.Flags().Bool("exit-code", false, "Exit with status 2 when the diff has changes")

	return cmd
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <snapshot-id>",
		Short: "Render the current-model page tree of a snapshot and optionally publish it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			publish, _ := cmd.Flags().GetBool("publish")
			printBody, _ := cmd.Flags().GetBool("print")

			p, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.Snapshot(cmd.Context(), id, publish)
			if res != nil && res.Published != nil {
				for _, loc := range res.Published.Published() {
					fmt.Fprintf(cmd.OutOrStdout(), "Published %q (page %s, version %d)\n", loc.Title, loc.PageID, loc.Version)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot %s (completed %s)\n", res.Label, humanize.Time(res.CompletedAt))
			printPage(out, res.Tree.Root, printBody)
			for _, c := range res.Tree.Children {
				printPage(out, c, printBody)
			}
			return nil
		},
	}

	cmd.Flags().Bool("publish", false, "Upsert the page tree to the wiki")
	cmd.Flags().Bool("print", false, "Print the rendered page bodies")

	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file|->",
		Short: "Normalize a diff document from a file without a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			renderer, _ := cmd.Flags().GetString("render")

			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			report, warnings, err := pipeline.Inspect(raw)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				slog.Warn("diff content degraded", "issue", w.String())
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				fmt.Fprintln(out, diff.RenderSummary(report))
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
				if err := enc.Close(); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
			default:
				return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
			}

			if renderer != "" {
				r, err := render.Get(renderer)
				if err != nil {
					return err
				}
				page := r.RenderDiff(render.DiffInput{BeforeLabel: "before", AfterLabel: "after", Report: report})
				printPage(out, page, true)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "table", "Output format: table, json or yaml")
	cmd.Flags().String("render", "", "Also render the page with this renderer (storage or wiki)")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a diff document's structure (CI check)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			doc, err := diff.ParseDocument(raw)
			if err != nil {
				return err
			}

			result, err := validate.Document(doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), validate.FormatResult(result))

			if result.HasErrors() {
				return &pipeline.ExitError{Code: pipeline.ExitMalformed}
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the publish API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			opts := []server.Option{server.WithHealthCheck("database", db)}
			var popts []pipeline.Option
			if cfg.Lock.RedisURL != "" {
				l, err := lock.NewRedisLocker(cfg.Lock.RedisURL, cfg.Lock.TTL)
				if err != nil {
					return err
				}
				defer l.Close()
				popts = append(popts, pipeline.WithLocker(l))
				opts = append(opts, server.WithHealthCheck("redis", l))
			}

			p, err := pipeline.New(cfg, db, popts...)
			if err != nil {
				return err
			}
			return server.New(p, opts...).ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: from config)")

	return cmd
}

// setup loads config and opens the database and optional lock for one
// command run.
func setup(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{db.Close}
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var opts []pipeline.Option
	if cfg.Lock.RedisURL != "" {
		l, err := lock.NewRedisLocker(cfg.Lock.RedisURL, cfg.Lock.TTL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, l.Close)
		opts = append(opts, pipeline.WithLocker(l))
	}

	p, err := pipeline.New(cfg, db, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set DATABASE_URL)")
	}
	return store.Open(ctx, cfg.DatabaseURL)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	configureLogging(cfg.LogLevel)
	return cfg, nil
}

func configureLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func printPage(w io.Writer, page render.Page, body bool) {
	fmt.Fprintf(w, "%s (%s)\n", page.Title, humanize.Bytes(uint64(len(page.Body))))
	if body {
		fmt.Fprintln(w, strings.TrimRight(page.Body, "\n"))
	}
}
