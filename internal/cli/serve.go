package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mnemo-ai/mnemo/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Expose the memory engine as MCP tools over stdio.

Register it with an MCP-capable agent, e.g. in a Claude Code config:

  {"mcpServers": {"mnemo": {"command": "mnemo", "args": ["serve"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintln(os.Stderr, "mnemo serve speaks MCP over stdio; it is meant to be launched by an MCP client, not interactively.")
			}

			// MCP owns stdout; diagnostics go to stderr.
			logCfg := zap.NewProductionConfig()
			logCfg.OutputPaths = []string{"stderr"}
			logger, err := logCfg.Build()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			eng, err := openEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			mcp.Version = version
			srv := mcp.NewServer(eng.store, eng.pipeline, eng.searcher, eng.sessions, eng.cfg.DefaultUser, logger)
			return srv.Serve()
		},
	}
}
