// Package main is the entry point for the tshop admin server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin server (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	root := &cobra.Command{
		Use:   "tshop-admin",
		Short: "Headless screen controller for the tshop admin console",
		Long: `tshop-admin serves paginated resource screens (accessories, cars) over a
JSON API and speaks the tshop REST contract to the backend.

Screens are declared in YAML definition files. Configuration is read from
--config and overridden by TSHOP_* environment variables.`,
		Args:          cobra.NoArgs,
		RunE:          serveCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	root.AddCommand(serveCmd, newValidateCmd(&configPath), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tshop-admin %s (%s)\n", version, commit)
		},
	}
}
