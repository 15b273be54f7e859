package mcpcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/cmd/relay/configpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/mcptool"
	"github.com/papercomputeco/relay/pkg/relay"
)

const mcpLongDesc string = `Serve the relay as an MCP tool over stdio.

Registers a single "chat" tool taking {"messages": [...]} and/or
{"prompt": "..."} and returning {"reply": "..."}. Logs go to stderr.

Examples:
  relay mcp
  relay mcp --config ~/.relay/config.toml`

const mcpShortDesc string = "Serve the chat tool over MCP stdio"

type mcpCommander struct {
	configPath string
	debug      bool
	version    string

	lookup config.LookupFunc
}

func NewMCPCmd(version string) *cobra.Command {
	return newMCPCmd(version, os.LookupEnv)
}

func newMCPCmd(version string, lookup config.LookupFunc) *cobra.Command {
	return (&mcpCommander{version: version, lookup: lookup}).command()
}

func (c *mcpCommander) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcp",
		Short:         mcpShortDesc,
		Long:          mcpLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.configPath, "config", "c", "", "Path to the relay TOML config")
	cmd.Flags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *mcpCommander) loadConfig() (*config.Config, error) {
	path, err := configpath.ResolveConfigPath(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("could not resolve config: %w", err)
	}

	cfg, err := config.Load(path, c.lookup)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	return cfg, nil
}

func (c *mcpCommander) run(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol
	log := logger.New(logger.Options{Debug: c.debug || cfg.Debug, Writer: os.Stderr})
	defer log.Sync()

	server := mcptool.NewServer(config.NewStore(cfg), relay.New(relay.WithLogger(log)), log, c.version)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
