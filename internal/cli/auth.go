package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/session"
)

// envPassword lets scripts log in without a prompt.
const envPassword = "FINTRACK_PASSWORD"

func (r *runner) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := r.password(cmd, password)
			if err != nil {
				return err
			}
			ok, err := r.app.Session.Login(cmd.Context(), session.LoginRequest{Email: email, Password: pw})
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("login failed: the server did not open a session")
			}
			r.greet(cmd.OutOrStdout(), "Logged in")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return guarded(cmd, "/login")
}

func (r *runner) registerCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := r.password(cmd, password)
			if err != nil {
				return err
			}
			ok, err := r.app.Session.Register(cmd.Context(), session.RegisterRequest{
				Email:    email,
				Password: pw,
				FullName: name,
			})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created. Run 'fintrack login' to sign in.")
				return nil
			}
			r.greet(cmd.OutOrStdout(), "Account created, logged in")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return guarded(cmd, "/register")
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			r.app.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		},
	}
}

func (r *runner) statusCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if check && r.app.Session.IsAuthenticated() {
				// Any authenticated read proves the session, refreshing it if needed.
				if _, err := r.app.Finance.Categories(cmd.Context(), ""); err != nil {
					return err
				}
			}

			st := r.app.Session.Snapshot()
			if st.AccessToken == "" || st.User == nil {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}
			w := newTable(out)
			fmt.Fprintf(w, "User:\t%s <%s>\n", st.User.FullName, st.User.Email)
			fmt.Fprintf(w, "User ID:\t%d\n", st.User.ID)
			if exp, err := session.TokenExpiry(st.AccessToken); err == nil {
				state := "valid"
				if time.Now().After(exp) {
					state = "expired, refreshed on next request"
				}
				fmt.Fprintf(w, "Token expires:\t%s (%s)\n", exp.Local().Format(time.RFC1123), state)
			}
			if check {
				m := r.app.Transport.Metrics()
				fmt.Fprintf(w, "Requests:\t%d (avg %s)\n", m.TotalRequests, time.Duration(m.AverageResponseTime)*time.Microsecond)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "verify the session against the server")
	return cmd
}

// password returns the flag value, then $FINTRACK_PASSWORD, then a line read
// from the command's input.
func (r *runner) password(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func (r *runner) greet(w io.Writer, prefix string) {
	u := r.app.Session.User()
	if u == nil {
		fmt.Fprintln(w, prefix+".")
		return
	}
	fmt.Fprintf(w, "%s as %s <%s>.\n", prefix, u.FullName, u.Email)
}
