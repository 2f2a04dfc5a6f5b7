package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/indexer"
	"github.com/tootsearch/tootsearch/internal/mastodon"
	"github.com/tootsearch/tootsearch/internal/report"
	"github.com/tootsearch/tootsearch/internal/search"
	"github.com/tootsearch/tootsearch/internal/store"
	"github.com/tootsearch/tootsearch/pkg/config"
	"github.com/tootsearch/tootsearch/pkg/logging"
	"github.com/tootsearch/tootsearch/pkg/telemetry"
)

// app carries process-wide state initialized before any subcommand runs.
type app struct {
	cfg              *config.Config
	shutdownTelemetry func()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tootsearch",
		Short:         "Archive and search Mastodon posts locally",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := logging.InitLogger(&cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			shutdown, err := telemetry.Init(&cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			a.cfg = cfg
			a.shutdownTelemetry = shutdown
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.shutdownTelemetry != nil {
				a.shutdownTelemetry()
			}
			logging.GetLogger().Sync()
		},
	}

	root.AddCommand(
		newIndexCommand(a),
		newSearchCommand(a),
		newTopCommand(a),
		newServeCommand(a),
	)
	return root
}

// openArchive ensures the archive and index exist and opens both. The
// returned closer releases them in reverse order.
func (a *app) openArchive(recreate bool) (*store.Store, *search.Index, func(), error) {
	if err := store.Initialize(a.cfg.DatabasePath, recreate); err != nil {
		return nil, nil, nil, err
	}
	st, err := store.Open(a.cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}
	idx, err := search.Open(a.cfg.IndexPath)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	closer := func() {
		idx.Close()
		st.Close()
	}
	return st, idx, closer, nil
}

func newIndexCommand(a *app) *cobra.Command {
	var noVerifySSL bool
	var recreate bool

	cmd := &cobra.Command{
		Use:   "index <host> <user>",
		Short: "Fetch new posts from an instance and update the local archive and index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, user := args[0], args[1]

			st, idx, closer, err := a.openArchive(recreate)
			if err != nil {
				return err
			}
			defer closer()

			client := mastodon.NewClient(host, !noVerifySSL)
			sync := indexer.New(a.cfg, st, idx, indexer.ClientSource{Client: client})

			stats, err := sync.Run(context.Background(), user)
			if err != nil {
				return err
			}
			logging.GetLogger().Info("Index run finished",
				zap.Int("archived", stats.Archived),
				zap.Int("indexed", stats.Indexed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noVerifySSL, "no-verify-ssl", false,
		"skip TLS certificate verification (self-hosted instances)")
	cmd.Flags().BoolVar(&recreate, "recreate", false,
		"destroy and recreate the archive database before syncing")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search archived posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, idx, closer, err := a.openArchive(false)
			if err != nil {
				return err
			}
			defer closer()

			r := report.New(st, idx, a.cfg.DisplayWidth)
			return r.Search(context.Background(), args[0], cmd.OutOrStdout())
		},
	}
}

func newTopCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top [category]",
		Short: "Show the archived posts with the most replies, boosts, or favourites",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := report.CategoryFavourites
			if len(args) == 1 {
				var err error
				category, err = report.ParseCategory(args[0])
				if err != nil {
					return err
				}
			}

			st, idx, closer, err := a.openArchive(false)
			if err != nil {
				return err
			}
			defer closer()

			r := report.New(st, idx, a.cfg.DisplayWidth)
			return r.Top(context.Background(), category, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of posts to show")
	return cmd
}
