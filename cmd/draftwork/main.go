// Package main is the draftwork CLI. `serve` runs the tracking server (REST,
// SSE, MCP); `watch` opens a live terminal view of one work item.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hylla/draftwork/internal/adapters/catalog"
	"github.com/hylla/draftwork/internal/adapters/notify"
	serveradapter "github.com/hylla/draftwork/internal/adapters/server"
	"github.com/hylla/draftwork/internal/adapters/storage/sqlite"
	"github.com/hylla/draftwork/internal/app"
	"github.com/hylla/draftwork/internal/config"
	"github.com/hylla/draftwork/internal/domain"
	"github.com/hylla/draftwork/internal/eventbus"
	"github.com/hylla/draftwork/internal/platform"
	clientsync "github.com/hylla/draftwork/internal/sync"
	"github.com/hylla/draftwork/internal/tui"
)

// version is stamped at build time via -ldflags.
var version = "dev"

type program interface {
	Run() (tea.Model, error)
}

// programFactory is swapped out in tests to avoid driving a real terminal.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// rootOptions holds persistent flag state shared by all subcommands.
type rootOptions struct {
	configPath string
	dbPath     string
	devMode    bool
	logLevel   string
}

// resolved carries the loaded runtime configuration for one command run.
type resolved struct {
	cfg   config.Config
	paths platform.Paths
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the CLI command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "draftwork",
		Short:         "Template production tracking for small design teams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", version == "dev", "use dev mode paths (draftwork-dev)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newPathsCmd(opts))
	return root
}

// resolveRuntime loads paths and config honoring flag and env overrides.
func resolveRuntime(opts *rootOptions) (resolved, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: "draftwork",
		DevMode: opts.devMode,
	})
	if err != nil {
		return resolved{}, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("DRAFTWORK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("DRAFTWORK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return resolved{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	return resolved{cfg: cfg, paths: paths}, nil
}

// configureLogging applies CLI logging settings to the shared default logger.
func configureLogging(levelName string) error {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("parse logging level %q: %w", levelName, err)
	}
	log.SetLevel(level)
	log.SetPrefix("draftwork")
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
	return nil
}

// newServeCmd builds the serve subcommand.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := configureLogging(opts.logLevel); err != nil {
				return err
			}
			state, err := resolveRuntime(opts)
			if err != nil {
				return err
			}
			cfg := state.cfg
			if strings.TrimSpace(httpBind) != "" {
				cfg.Server.Bind = httpBind
			}
			if strings.TrimSpace(apiEndpoint) != "" {
				cfg.Server.APIEndpoint = apiEndpoint
			}
			if strings.TrimSpace(mcpEndpoint) != "" {
				cfg.Server.MCPEndpoint = mcpEndpoint
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (overrides config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (overrides config)")
	return cmd
}

// runServe opens storage, seeds the user directory, and serves until ctx ends.
func runServe(ctx context.Context, cfg config.Config) error {
	log.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			log.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	directory := cfg.Directory()
	for position, user := range directory {
		if err := repo.UpsertUser(ctx, user, position); err != nil {
			return fmt.Errorf("seed user %q: %w", user.Handle, err)
		}
	}
	log.Info("user directory seeded", "users", len(directory))

	bus := eventbus.New()
	service := app.NewService(repo, bus, catalog.NewLocal(), notify.Log{}, nil)

	log.Info("serving", "bind", cfg.Server.Bind, "api", cfg.Server.APIEndpoint, "mcp", cfg.Server.MCPEndpoint)
	return serveradapter.Run(ctx, serveradapter.Config{
		HTTPBind:      cfg.Server.Bind,
		APIEndpoint:   cfg.Server.APIEndpoint,
		MCPEndpoint:   cfg.Server.MCPEndpoint,
		ServerName:    "draftwork",
		ServerVersion: version,
	}, serveradapter.Dependencies{
		Service: service,
		Bus:     bus,
	})
}

// newWatchCmd builds the watch subcommand.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		serverURL string
		actorID   string
	)
	cmd := &cobra.Command{
		Use:   "watch <item-id>",
		Short: "Watch one work item live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || itemID <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			if err := configureLogging(opts.logLevel); err != nil {
				return err
			}
			state, err := resolveRuntime(opts)
			if err != nil {
				return err
			}
			cfg := state.cfg
			if strings.TrimSpace(serverURL) != "" {
				cfg.Watch.ServerURL = serverURL
			}
			actor := strings.TrimSpace(actorID)
			if actor == "" {
				actor = strings.TrimSpace(os.Getenv("DRAFTWORK_ACTOR"))
			}
			if actor == "" {
				return errors.New("--actor (or DRAFTWORK_ACTOR) is required")
			}
			return runWatch(cmd.Context(), cfg, actor, itemID)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "tracking server base URL (overrides config)")
	cmd.Flags().StringVar(&actorID, "actor", "", "acting user id sent on every request")
	return cmd
}

// runWatch fetches the initial snapshot and runs the watch TUI over it.
func runWatch(ctx context.Context, cfg config.Config, actorID string, itemID int64) error {
	client := clientsync.NewClient(cfg.Watch.ServerURL, actorID, nil)

	snapshot, err := client.FetchItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("item %d not found on %s", itemID, cfg.Watch.ServerURL)
		}
		return fmt.Errorf("fetch item %d: %w", itemID, err)
	}
	ctrl := clientsync.NewWithPulse(snapshot, nil, cfg.Watch.PulseDuration())

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := tui.NewModel(ctrl,
		tui.WithWatchFunc(func(context.Context) error {
			return client.Watch(watchCtx, ctrl)
		}),
		tui.WithFetchFunc(func(ctx context.Context) (domain.WorkItem, error) {
			return client.FetchItem(ctx, itemID)
		}),
	)
	if _, err := programFactory(m).Run(); err != nil {
		return fmt.Errorf("run watch program: %w", err)
	}
	return nil
}

// newPathsCmd builds the paths subcommand.
func newPathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{
				AppName: "draftwork",
				DevMode: opts.devMode,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}
