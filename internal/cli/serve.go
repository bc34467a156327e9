package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/inkwell/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API and uploaded images",
		Long: `Serve the local JSON API for a browser front end, plus uploaded images
under /blobs/. Stops on SIGINT or SIGTERM.

Example:
  inkwell serve --addr 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts.RootOptions, cmd, func(ctx context.Context, rt *runtime) error {
				return runServe(ctx, opts, rt)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, rt *runtime) error {
	addr := opts.Addr
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}

	if opts.ServeContext != nil {
		ctx = opts.ServeContext
	} else {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	srv := server.New(rt.client, rt.blobs.Root(),
		server.WithLogger(rt.logger),
		server.WithNow(rt.now),
	)
	if err := srv.Run(ctx, addr); err != nil {
		rt.out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "serve", err)
	}
	return nil
}
