package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
)

// NewSignInCommand creates the signin command.
func NewSignInCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in with the configured identity provider",
		Long: `Sign in with the configured identity provider.

The local provider prompts for email and password on stdin. The oauth
provider prints a URL to open in a browser and waits for the redirect.
The session is persisted, so later commands see the signed-in user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				out, err := rt.await(ctx, rt.client.SignIn(ctx))
				if err != nil {
					return err
				}
				u, _ := out.(engine.Success).Data.(*identity.User)
				return rt.out.Render(u, func(w io.Writer) {
					fmt.Fprintf(w, "Signed in as %s\n", describeUser(u))
				})
			})
		},
	}
}

// NewSignOutCommand creates the signout command.
func NewSignOutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				if _, err := rt.await(ctx, rt.client.SignOut(ctx)); err != nil {
					return err
				}
				return rt.out.Render(nil, func(w io.Writer) {
					fmt.Fprintln(w, "Signed out")
				})
			})
		},
	}
}

// NewWhoAmICommand creates the whoami command.
func NewWhoAmICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				u := rt.client.State().Auth.User
				return rt.out.Render(u, func(w io.Writer) {
					if u == nil {
						fmt.Fprintln(w, "Not signed in")
						return
					}
					fmt.Fprintln(w, describeUser(u))
				})
			})
		},
	}
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Name  string
	Email string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a local account",
		Long: `Create an account for the local identity provider. The password is read
from the first line of stdin.

Example:
  inkwell register --name Ada --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts.RootOptions, cmd, func(ctx context.Context, rt *runtime) error {
				return runRegister(ctx, opts, rt)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runRegister(ctx context.Context, opts *RegisterOptions, rt *runtime) error {
	if rt.local == nil {
		msg := "register is only available with the local identity provider"
		rt.out.Error(ErrCodeUsage, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	fmt.Fprint(rt.out.GetErrWriter(), "Password: ")
	sc := bufio.NewScanner(stdin(opts.RootOptions))
	if !sc.Scan() {
		rt.out.Error(ErrCodeUsage, "no password given", nil)
		return NewExitError(ExitCommandError, "no password given")
	}
	password := strings.TrimSpace(sc.Text())

	u, err := rt.local.Register(ctx, opts.Name, opts.Email, password)
	if err != nil {
		code := ErrCodeValidation
		if !errors.Is(err, identity.ErrEmailTaken) && strings.HasPrefix(err.Error(), "register:") {
			code = ErrCodeStore
		}
		rt.out.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "register", err)
	}
	return rt.out.Render(u, func(w io.Writer) {
		fmt.Fprintf(w, "Registered %s; run `inkwell signin` to sign in\n", describeUser(u))
	})
}

func describeUser(u *identity.User) string {
	if u == nil {
		return "(nobody)"
	}
	if u.Email == "" {
		return u.Name
	}
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}
