package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/segregate/internal/authclient"
)

// cliNav is the navigator for a terminal: there are no pages, it only
// remembers where the controller wanted to go.
type cliNav struct{ path string }

func (n *cliNav) Navigate(path string) { n.path = path }
func (n *cliNav) CurrentPath() string  { return n.path }

type profile struct {
	authclient.User
	Permissions []string `json:"permissions"`
}

func whoamiCmd() *cobra.Command {
	var baseURL, email, password string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Log in to a running server and print the account",
		Long: `Log in with email and password, print the account and its permissions,
then log out.

The password may be given in SEGREGATE_PASSWORD instead of --password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("SEGREGATE_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			api, err := authclient.NewClient(baseURL, &http.Client{Timeout: 15 * time.Second})
			if err != nil {
				return err
			}
			ctrl := authclient.NewController(api, &cliNav{}, authclient.Options{})
			ctx := cmd.Context()

			if err := ctrl.Login(ctx, email, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			defer ctrl.Logout(ctx)

			var p profile
			if err := ctrl.Do(ctx, http.MethodGet, "/api/users/me", nil, &p); err != nil {
				return fmt.Errorf("profile: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id:          %d\n", p.ID)
			fmt.Fprintf(w, "name:        %s\n", p.Name)
			fmt.Fprintf(w, "email:       %s\n", p.Email)
			fmt.Fprintf(w, "role:        %s\n", p.Role)
			fmt.Fprintf(w, "permissions: %s\n", strings.Join(p.Permissions, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	return cmd
}
