package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/segregate/internal/config"
	"github.com/iliyamo/segregate/internal/credential"
	"github.com/iliyamo/segregate/internal/database"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/repository"
)

// openDB loads the server configuration and connects to its database.
func openDB(ctx context.Context, migrate bool) (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	db, dialect, err := database.Connect(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	if migrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return config.Config{}, nil, err
		}
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close()
			success(cmd.OutOrStdout(), "schema applied (%s)", cfg.DBDriver)
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long: `Create an admin account directly in the database.

Signup never grants the admin role, so the first admin of a deployment
is created here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			name = strings.TrimSpace(name)
			if name == "" || email == "" || password == "" {
				return errors.New("--name, --email and --password are required")
			}

			cfg, db, err := openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close()

			gw, err := credential.NewGateway(repository.NewUserRepo(db), policy.Default(), cfg.BcryptCost)
			if err != nil {
				return err
			}
			hash, err := gw.HashPassword(password)
			if err != nil {
				return err
			}
			u, err := gw.CreateCredential(cmd.Context(), credential.NewCredential{
				Name:         name,
				Email:        email,
				PasswordHash: hash,
				Role:         policy.RoleAdmin,
			})
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "admin %s created (id %d)", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	return cmd
}
