package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/relay/cmd/relay/ask"
	mcpcmder "github.com/papercomputeco/relay/cmd/relay/mcp"
	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const rootLongDesc string = `relay forwards chat conversations to an LLM provider and returns a
single plain-text reply, keeping the provider key on the server.

With an assistant id configured, each request drives a fresh thread and
run; otherwise it makes one single-shot response call.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Chat relay for browser clients",
		Long:          rootLongDesc,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd(version))

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		r := lipgloss.NewRenderer(os.Stderr)
		label := r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Render("error:")
		fmt.Fprintln(os.Stderr, label, err)
		os.Exit(1)
	}
}
