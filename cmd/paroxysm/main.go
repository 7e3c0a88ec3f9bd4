// paroxysm: an IRC keyword knowledge-base bot.
//
// Users teach and query named keywords in chat ("??foo: bar", "??foo[2]").
// The same SQLite database can be curated locally over MCP.
//
// Usage:
//
//	paroxysm serve     # Connect to IRC and answer keyword commands
//	paroxysm mcp       # Start the operator MCP server (stdio transport)
//	paroxysm version   # Print the version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/config"
	"github.com/HendryAvila/paroxysm/internal/logging"
	kbserver "github.com/HendryAvila/paroxysm/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares once the root has run.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "paroxysm",
		Short: "IRC keyword knowledge-base bot",
		Long: `paroxysm remembers facts for IRC channels.

Anyone can teach a keyword in a channel with "??name: text" and look it up
with "??name". Administrators curate general keywords that every channel sees.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	// load runs before subcommands that need configuration.
	load := func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.cfg, a.log = cfg, log
		return nil
	}
	flush := func(cmd *cobra.Command, args []string) {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to IRC and answer keyword commands",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := load(cmd, args); err != nil {
				return err
			}
			return a.cfg.ValidateIRC()
		},
		PostRun: flush,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the operator MCP server on stdio",
		Long: `Serves the knowledge base to a local AI host over MCP (stdio transport).
Operators act as administrators: they can edit general keywords.`,
		Args:    cobra.NoArgs,
		PreRunE: load,
		PostRun: flush,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(a)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "paroxysm v%s\n", kbserver.Version)
		},
	}

	root.AddCommand(serveCmd, mcpCmd, versionCmd)
	return root
}
