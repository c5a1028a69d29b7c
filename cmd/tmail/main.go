package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"tmail/internal/conf"
	"tmail/internal/flow"
	"tmail/internal/log"
	"tmail/internal/session"
	"tmail/internal/webstore"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func main() {
	Execute()
}

var (
	confPath   string
	apiBaseURL string
	driver     string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tmail",
	Short: "Command line client for tmail",
	Long: `tmail signs in to a tmail server through its identity provider and keeps
the session in local storage shared by every tmail process on this machine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&confPath, "conf", "configs/config.yaml", "config path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "API base URL (overrides client.api_base_url)")
	rootCmd.PersistentFlags().StringVar(&driver, "storage", "", "session storage driver: sqlite, redis or memory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, watchCmd, profileCmd, noticeCmd)
}

// client bundles what every command needs.
type client struct {
	cfg     *conf.Config
	storage webstore.Storage
	store   *session.Store
	api     *flow.APIClient
	logger  *slog.Logger
}

func newClient(ctx context.Context) (*client, error) {
	cfg, err := conf.Load(confPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiBaseURL != "" {
		cfg.Client.APIBaseURL = apiBaseURL
	}
	if driver != "" {
		cfg.Client.Storage.Driver = driver
	}

	var w io.Writer = io.Discard
	level := "error"
	if verbose {
		w, level = os.Stderr, "debug"
	}
	logger, err := log.New(w, level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	storage, err := webstore.Open(ctx, cfg.Client.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	return &client{
		cfg:     cfg,
		storage: storage,
		store:   session.NewStore(storage, logger),
		api:     flow.NewAPIClient(cfg.Client.APIBaseURL, nil),
		logger:  logger,
	}, nil
}

func (c *client) Close() error {
	return c.storage.Close()
}

func (c *client) controller(nav flow.Navigator) *flow.Controller {
	opts := []flow.Option{
		flow.WithLandingPath(c.cfg.Client.LandingPath),
		flow.WithLogger(c.logger),
	}
	if c.cfg.Client.VerifyState {
		opts = append(opts, flow.WithStateVerification())
	}
	return flow.NewController(c.api, c.store, nav, opts...)
}
