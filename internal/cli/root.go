// Package cli implements the automakerctl command tree. Commands talk to a
// running deployment pipeline server over its HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "automakerctl",
		Short:         "Control a running Automaker deployment pipeline server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8400", "Base URL of the pipeline server")

	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// Execute runs the CLI and returns an exit error, if any.
func Execute() error {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
