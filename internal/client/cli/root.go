// Package cli implements the songletters command-line client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrijs2005/songletters/internal/buildinfo"
	"github.com/dmitrijs2005/songletters/internal/client/client"
	"github.com/dmitrijs2005/songletters/internal/client/config"
	"github.com/dmitrijs2005/songletters/internal/client/models"
	"github.com/dmitrijs2005/songletters/internal/client/services"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/spf13/cobra"
)

// Service is what the commands need from the client side.
type Service interface {
	Whoami(ctx context.Context) (*models.IdentityResponse, error)
	LocalIdentity(ctx context.Context) *identity.Identity
	Create(ctx context.Context, in models.NewLetter) (*models.LetterResponse, error)
	Show(ctx context.Context, linkID string) (*models.LetterResponse, error)
	Mine(ctx context.Context, page models.Page) (*models.ListResponse, error)
	Explore(ctx context.Context, req models.ExploreRequest) (*models.ListResponse, error)
	Merge(ctx context.Context, token, accountID string) (*models.MergeReport, error)
	Reset(ctx context.Context) error
}

// Opener builds the Service for one invocation. The returned func releases
// whatever it opened.
type Opener func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Service, func() error, error)

type options struct {
	configPath string
	serverURL  string
	dbPath     string
	timeout    time.Duration
	verbose    bool
	asJSON     bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	open    Opener
	opts    options
	service Service
	reader  *bufio.Reader
}

// NewRootCmd wires every command to open.
func NewRootCmd(open Opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:           "songletters",
		Short:         "Write letters that travel with a song",
		Long:          `songletters creates and reads song letters. Letters you write are tied to an anonymous identity kept on this machine until you sign in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "path to a JSON config file")
	flags.StringVar(&a.opts.serverURL, "server", "", "server base URL")
	flags.StringVar(&a.opts.dbPath, "db", "", "local database path")
	flags.DurationVar(&a.opts.timeout, "timeout", 0, "request timeout")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&a.opts.asJSON, "json", false, "output JSON")

	root.AddCommand(
		newWhoamiCmd(a),
		newCreateCmd(a),
		newShowCmd(a),
		newMineCmd(a),
		newExploreCmd(a),
		newMergeCmd(a),
		newResetCmd(a),
		newVersionCmd(),
	)
	return root
}

// runE opens the service around fn and releases it afterwards.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		closer, err := a.setup(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closer(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (a *app) setup(cmd *cobra.Command) (func() error, error) {
	cfg, err := config.LoadConfig(a.opts.configPath)
	if err != nil {
		return nil, err
	}
	if a.opts.serverURL != "" {
		cfg.ServerURL = a.opts.serverURL
	}
	if a.opts.dbPath != "" {
		cfg.DatabasePath = a.opts.dbPath
	}
	if a.opts.timeout > 0 {
		cfg.RequestTimeout = a.opts.timeout
	}

	level := slog.LevelWarn
	if a.opts.verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewTextLogger(cmd.ErrOrStderr(), level)

	svc, closer, err := a.open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	a.service = svc
	if closer == nil {
		closer = func() error { return nil }
	}
	return closer, nil
}

// OpenService is the production Opener: local SQLite plus the HTTP API.
func OpenService(ctx context.Context, cfg *config.Config, logger logging.Logger) (Service, func() error, error) {
	repos, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open local database: %w", err)
	}
	fp := services.DeviceFingerprint()
	api := client.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout, fp, services.UserAgent(buildinfo.BuildVersion))
	return services.NewService(api, repos.Metadata, fp, logger), repos.Close, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(OpenService)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
