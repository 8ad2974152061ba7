package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var email string

	c := &cobra.Command{
		Use:   "login",
		Short: "Log in to Octiv and store the tokens and account ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if email == "" {
				fmt.Fprint(out, "Email: ")
				if email, err = readLine(in); err != nil {
					return err
				}
			}
			fmt.Fprint(out, "Password: ")
			password, err := readPassword(in)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			tok, err := a.api.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			id, err := a.api.WhoAmI(ctx, tok.Token)
			if err != nil {
				return fmt.Errorf("fetch account: %w", err)
			}

			state := booking.AuthState{
				Email:        email,
				Token:        tok.Token,
				RefreshToken: tok.RefreshToken,
				ExpiresAt:    tok.ExpiresAt,
				UserID:       id.UserID,
				TenantID:     id.TenantID,
				LocationID:   id.LocationID,
			}
			if err := a.store.UpdateAuth(ctx, state); err != nil {
				return err
			}

			fmt.Fprintf(out, "logged in as %s (user %d, tenant %d, location %d)\n", email, id.UserID, id.TenantID, id.LocationID)
			if !tok.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "token expires %s\n", tok.ExpiresAt.Local().Format("Mon 02 Jan 2006 15:04"))
			}
			if tok.RefreshToken == "" {
				fmt.Fprintln(out, "no refresh token issued; run login again when the token expires")
			}
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "account email")
	return c
}

func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// readPassword does not echo when stdin is a terminal.
func readPassword(r *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(r)
}
