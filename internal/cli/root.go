package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	goption "google.golang.org/api/option"

	"fintrack/internal/apiclient"
	"fintrack/internal/config"
	"fintrack/internal/credstore"
	"fintrack/internal/guard"
	applog "fintrack/internal/log"
)

// annotationRoute names the guarded route a command navigates to.
const annotationRoute = "fintrack/route"

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// Options overrides what Run would otherwise build from the environment.
type Options struct {
	Config *config.Config
	Logger *applog.Logger
	// Store replaces the configured credential backend.
	Store credstore.Store
	// SheetsOptions are passed to the Sheets client instead of service
	// account credentials.
	SheetsOptions []goption.ClientOption

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type runner struct {
	opts Options
	app  *App
}

// Execute runs the command line against the process environment and exits
// non-zero on failure.
func Execute() {
	LoadEnvFile()
	logger := SetupLogger(os.Stderr, os.Getenv("LOG_LEVEL"))

	ctx, stop := ShutdownContext(context.Background(), logger)
	err := Run(ctx, Options{Logger: logger}, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// Run executes the command line given by args.
func Run(ctx context.Context, opts Options, args []string) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	r := &runner{opts: opts}
	defer r.close()

	root := r.rootCommand()
	root.SetArgs(args)
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	return root.ExecuteContext(ctx)
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fintrack",
		Short: "fintrack is a command line client for a personal finance API",
		Long: `fintrack keeps you signed in to a personal finance service and lets you
manage categories, transactions and monthly budgets from the terminal.

The session is stored locally and refreshed transparently when the
access token expires.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.prepare,
	}

	root.AddCommand(
		r.loginCmd(),
		r.registerCmd(),
		r.logoutCmd(),
		r.statusCmd(),
		r.categoriesCmd(),
		r.transactionsCmd(),
		r.budgetsCmd(),
		r.dashboardCmd(),
		r.exportCmd(),
	)
	return root
}

// prepare wires the app and runs the route guard for the command.
func (r *runner) prepare(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := r.init(ctx); err != nil {
		return err
	}

	target, ok := cmd.Annotations[annotationRoute]
	if !ok {
		// Unguarded commands still start from the stored session.
		if err := r.app.Session.Rehydrate(ctx); err != nil {
			r.app.Logger.WarnContext(ctx, "Could not read stored session", applog.FieldError, err)
		}
		return nil
	}
	d := r.app.Guard.Check(ctx, fullPath(cmd, target))
	if d.Allowed {
		return nil
	}
	switch d.Route {
	case guard.RouteLogin:
		return fmt.Errorf("%w: run 'fintrack login' first", ErrNotLoggedIn)
	case guard.RouteDashboard:
		who := "another user"
		if u := r.app.Session.User(); u != nil {
			who = u.Email
		}
		return fmt.Errorf("%w as %s: run 'fintrack logout' first", ErrAlreadyLoggedIn, who)
	default:
		return fmt.Errorf("cannot open %s", d.Location())
	}
}

func (r *runner) init(ctx context.Context) error {
	if r.app != nil {
		return nil
	}
	logger := r.opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	cfg := r.opts.Config
	if cfg == nil {
		var err error
		if cfg, err = LoadAndValidateConfig(); err != nil {
			return err
		}
	}
	app, err := NewApp(ctx, cfg, logger, r.opts.Store)
	if err != nil {
		return err
	}
	app.sheetsOpts = r.opts.SheetsOptions
	r.app = app
	return nil
}

func (r *runner) close() {
	if r.app == nil {
		return
	}
	if err := r.app.Close(); err != nil {
		r.app.Logger.Warn("Shutdown incomplete", applog.FieldError, err)
	}
}

// guarded marks cmd as navigating to route.
func guarded(cmd *cobra.Command, route string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationRoute] = route
	return cmd
}

// fullPath renders the navigation target with the flags given on the
// command line as query, e.g. /budgets?month=3. Secrets are left out.
func fullPath(cmd *cobra.Command, route string) string {
	q := url.Values{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name != "password" {
			q.Set(f.Name, f.Value.String())
		}
	})
	if len(q) == 0 {
		return route
	}
	return route + "?" + q.Encode()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// describe turns well known failures into a hint for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, apiclient.ErrSessionExpired):
		return "your session has expired, run 'fintrack login' again"
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		return "invalid credentials"
	case errors.Is(err, apiclient.ErrNetworkFailure):
		return "cannot reach the finance API: " + err.Error()
	default:
		return err.Error()
	}
}
