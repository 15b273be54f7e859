package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/cmd/relay/configpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/proxy"
)

const serveLongDesc string = `Run the chat relay HTTP server.

POST /api/chat with {"messages":[{"role":"user","content":"..."}]}
returns {"reply":"..."}. The provider key never leaves the server.

Configuration comes from the TOML file (see --config), overridden by
OPENAI_API_KEY, OPENAI_ASSISTANT_ID, OPENAI_MODEL and friends. The file
is watched and reloaded on change unless --watch=false.

Examples:
  relay serve
  relay serve --listen :3000 --config ./relay.toml`

const serveShortDesc string = "Run the relay HTTP server"

type serveCommander struct {
	configPath string
	listen     string
	watch      bool
	debug      bool

	lookup config.LookupFunc
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(os.LookupEnv)
}

func newServeCmd(lookup config.LookupFunc) *cobra.Command {
	return (&serveCommander{lookup: lookup}).command()
}

func (c *serveCommander) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         serveShortDesc,
		Long:          serveLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.configPath, "config", "c", "", "Path to the relay TOML config")
	cmd.Flags().StringVarP(&c.listen, "listen", "l", "", "Address to listen on (overrides config)")
	cmd.Flags().BoolVar(&c.watch, "watch", true, "Reload the config file when it changes")
	cmd.Flags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	return cmd
}

// loadConfig resolves and loads the configuration, applying --listen.
func (c *serveCommander) loadConfig() (*config.Config, string, error) {
	path, err := configpath.ResolveConfigPath(c.configPath)
	if err != nil {
		return nil, "", fmt.Errorf("could not resolve config: %w", err)
	}

	cfg, err := config.Load(path, c.lookup)
	if err != nil {
		return nil, "", fmt.Errorf("could not load config: %w", err)
	}
	if c.listen != "" {
		cfg.Server.ListenAddr = c.listen
	}
	return cfg, path, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, path, err := c.loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(c.debug || cfg.Debug)
	defer log.Sync()

	log.Info("relay starting",
		zap.String("config", path),
		zap.String("listen", cfg.Server.ListenAddr),
		zap.Bool("stateful", cfg.Upstream.Stateful()),
	)
	if err := cfg.Upstream.Validate(); err != nil {
		log.Warn("chat requests will fail until an API key is configured", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(cfg)
	if path != "" && c.watch {
		if err := config.Watch(ctx, path, c.lookup, store, log); err != nil {
			return fmt.Errorf("could not watch config: %w", err)
		}
	}

	p := proxy.New(proxy.ConfigFrom(cfg), store, relay.New(relay.WithLogger(log)), log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := p.Shutdown(); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	return p.Run()
}
