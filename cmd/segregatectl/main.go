// Command segregatectl administers a segregate deployment: it applies the
// schema, seeds admin accounts and checks a login against a running server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "segregatectl",
		Short: "Administer the segregate reporting service",
		Long: `segregatectl manages a segregate deployment.

Database commands read the same environment (or .env file) as the server.

Examples:
  segregatectl migrate
  segregatectl create-admin --name Ada --email ada@example.com --password '...'
  segregatectl whoami --base-url http://localhost:8080 --email ada@example.com`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(
		migrateCmd(),
		createAdminCmd(),
		whoamiCmd(),
	)
	return root
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}
