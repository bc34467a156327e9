package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/inkwell/internal/app"
	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/config"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
)

// DefaultConfigFile is read from the working directory when no --config
// flag or INKWELL_CONFIG variable is given.
const DefaultConfigFile = "inkwell.yaml"

// actionTimeout bounds how long a command waits for one action.
const actionTimeout = 2 * time.Minute

// runtime is everything a command needs, opened from the config.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      *OutputFormatter
	docs     docstore.Store
	blobs    *blobstore.FS
	provider identity.Provider
	local    *identity.Local
	client   *app.Client
	now      func() time.Time
	closers  []func() error
}

// newFormatter builds the formatter for cmd's output streams.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig resolves the config file and applies the --data-dir flag.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	path := opts.ConfigPath
	if path == "" {
		path = getenv("INKWELL_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	cfg, err := config.Load(path, getenv)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openRuntime loads config and opens stores, identity and the client.
// The caller must Close the returned runtime.
func openRuntime(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	out := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	rt := &runtime{cfg: cfg, logger: logger, out: out, now: opts.Now}
	if rt.now == nil {
		rt.now = time.Now
	}

	if err := rt.open(ctx, opts); err != nil {
		rt.Close()
		out.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "open", err)
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context, opts *RootOptions) error {
	cfg := rt.cfg
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ts, err := cfg.Serializer()
	if err != nil {
		return err
	}

	switch cfg.Docstore.Driver {
	case "postgres":
		rt.docs, err = docstore.OpenPostgres(ctx, cfg.DocstoreDSN())
	default:
		rt.docs, err = docstore.OpenSQLite(cfg.DocstoreDSN())
	}
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, rt.docs.Close)

	rt.blobs, err = blobstore.NewFS(cfg.BlobDir(), cfg.Blobstore.BaseURL)
	if err != nil {
		return err
	}

	session := identity.NewSessionFile(cfg.SessionPath())
	switch cfg.Identity.Provider {
	case "oauth":
		opener := opts.Opener
		if opener == nil {
			opener = printOpener(rt.out.GetErrWriter())
		}
		rt.provider, err = identity.NewOAuth(cfg.Identity.OAuth.ClientID, cfg.Identity.OAuth.ClientSecret,
			session, opener, identity.WithOAuthLogger(rt.logger))
		if err != nil {
			return err
		}
	default:
		creds := opts.Credentials
		if creds == nil {
			creds = promptCredentials(stdin(opts), rt.out.GetErrWriter())
		}
		localOpts := []identity.LocalOption{identity.WithLocalLogger(rt.logger)}
		if opts.BcryptCost > 0 {
			localOpts = append(localOpts, identity.WithBcryptCost(opts.BcryptCost))
		}
		rt.local, err = identity.OpenLocal(cfg.AccountsPath(), session, creds, localOpts...)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, rt.local.Close)
		rt.provider = rt.local
	}

	rt.client, err = app.NewClient(app.Deps{
		Identity:   rt.provider,
		Docs:       rt.docs,
		Blobs:      rt.blobs,
		Serializer: ts,
		Logger:     rt.logger,
	})
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, rt.client.Close)
	return nil
}

// Close releases everything in reverse open order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// await waits for h and turns a failed outcome into reported output and
// an ExitError.
func (rt *runtime) await(ctx context.Context, h *engine.Handle) (engine.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out, err := h.Wait(ctx)
	if err != nil {
		rt.out.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "wait for action", err)
	}
	if _, failed := engine.Failure(out); failed {
		return out, rt.out.Fail(out)
	}
	return out, nil
}

// settled waits until the first identity emission has been applied so
// commands see the persisted session.
func (rt *runtime) settled(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	unsubscribe := rt.client.Subscribe(func(s app.State, ev engine.Event) {
		if !s.Auth.IsLoading {
			once.Do(func() { close(ready) })
		}
	})
	defer unsubscribe()
	if !rt.client.State().Auth.IsLoading {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		rt.out.Error(ErrCodeAuth, "auth state not observed", nil)
		return WrapExitError(ExitFailure, "auth state not observed", ctx.Err())
	}
}

// requireUser returns the signed-in user or reports an auth error.
func (rt *runtime) requireUser(action string) (*identity.User, error) {
	u := rt.client.State().Auth.User
	if u == nil {
		msg := "sign in to " + action
		rt.out.Error(ErrCodeAuth, msg, nil)
		return nil, NewExitError(ExitFailure, msg)
	}
	return u, nil
}

func stdin(opts *RootOptions) io.Reader {
	if opts.Stdin != nil {
		return opts.Stdin
	}
	return os.Stdin
}

// printOpener prints the authorization URL for the user to open.
func printOpener(w io.Writer) identity.Opener {
	return func(authURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
		return err
	}
}

// promptCredentials reads email and password lines from r. EOF before
// both are read counts as the user backing out.
func promptCredentials(r io.Reader, prompt io.Writer) identity.CredentialsFunc {
	return func(ctx context.Context) (identity.Credentials, error) {
		sc := bufio.NewScanner(r)
		var lines []string
		for _, label := range []string{"Email: ", "Password: "} {
			fmt.Fprint(prompt, label)
			if !sc.Scan() {
				return identity.Credentials{}, identity.ErrPopupClosed
			}
			lines = append(lines, strings.TrimSpace(sc.Text()))
		}
		return identity.Credentials{Email: lines[0], Password: lines[1]}, nil
	}
}

// withRuntime opens the runtime, waits for the auth state and runs fn.
func withRuntime(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.settled(ctx); err != nil {
		return err
	}
	return fn(ctx, rt)
}
