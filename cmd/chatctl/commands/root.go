// Package commands implements the chatctl CLI command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverAddr is the chatd address (host:port) for the TCP connection.
var serverAddr string

// rootCmd is the top-level cobra command for chatctl.
var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Terminal client for the chatd server",
	Long:  "chatctl connects to a chatd server over TCP and bridges the terminal to the line-oriented chat protocol.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "127.0.0.1:8000",
		"chatd server address (host:port)")

	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
