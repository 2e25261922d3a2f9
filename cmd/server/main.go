package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	memoryMode bool
	seedUsers  []string
)

var rootCmd = &cobra.Command{
	Use:           "launchpad",
	Short:         "Subscription entitlements and token ledger service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the provider catalog into the local store once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [email]",
	Short: "Issue a bearer token for a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := ""
		if len(args) == 2 {
			email = args[1]
		}
		return runToken(cmd.OutOrStdout(), args[0], email)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&memoryMode, "memory", false, "use the in-memory store instead of Postgres")
	rootCmd.PersistentFlags().StringArrayVar(&seedUsers, "seed-user", nil, "seed the in-memory store with id[:email[:ROLE]]")
	rootCmd.AddCommand(serveCmd, syncCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
