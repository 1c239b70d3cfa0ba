// Package cli implements the nodelet command-line client.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/nodelet/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking NODELET_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("NODELET_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the nodelet CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nodelet",
		Short: "Client for the nodelet task scheduler daemon",
		Long:  "nodelet submits tasks and objects to a nodelet daemon and inspects its scheduling queues.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "nodelet server URL (or NODELET_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newSubmitCmd(),
		newTasksCmd(),
		newTaskCmd(),
		newPutCmd(),
	)

	return root
}
