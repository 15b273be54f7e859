package askcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/relay/cmd/relay/configpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/pkg/upstream"
)

const askLongDesc string = `Send a prompt or a whole conversation upstream and print the reply.

The prompt is taken from the arguments, or from stdin when none are
given. --file loads a JSON conversation, either {"messages": [...]} or a
bare array of {"role", "content"} objects; a prompt given alongside it is
appended as a final user turn.

On a terminal the reply is rendered as markdown; --raw prints it as is.

Examples:
  relay ask "summarize RFC 9110 in three bullets"
  echo "hello" | relay ask
  relay ask --file conversation.json --system "answer in French"`

const askShortDesc string = "Ask the configured model a question"

type askCommander struct {
	configPath string
	file       string
	system     string
	raw        bool
	debug      bool

	lookup config.LookupFunc
}

func NewAskCmd() *cobra.Command {
	return newAskCmd(os.LookupEnv)
}

func newAskCmd(lookup config.LookupFunc) *cobra.Command {
	cmder := &askCommander{lookup: lookup}

	cmd := &cobra.Command{
		Use:           "ask [prompt...]",
		Short:         askShortDesc,
		Long:          askLongDesc,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to the relay TOML config")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "JSON conversation to send")
	cmd.Flags().StringVarP(&cmder.system, "system", "s", "", "System message prepended to the conversation")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the reply without markdown rendering")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	messages, err := c.conversation(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	path, err := configpath.ResolveConfigPath(c.configPath)
	if err != nil {
		return fmt.Errorf("could not resolve config: %w", err)
	}
	cfg, err := config.Load(path, c.lookup)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log := logger.New(logger.Options{Debug: c.debug || cfg.Debug, Writer: cmd.ErrOrStderr()})
	defer log.Sync()

	reply, err := relay.New(relay.WithLogger(log)).Reply(ctx, messages, cfg.Upstream)
	if err != nil {
		return describe(err)
	}

	return render(cmd.OutOrStdout(), reply, c.raw)
}

// conversation assembles the messages to send from the flags, args and in.
func (c *askCommander) conversation(in io.Reader, args []string) ([]llm.Message, error) {
	var messages []llm.Message

	if c.system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: c.system})
	}

	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return nil, fmt.Errorf("could not read conversation: %w", err)
		}
		loaded, err := decodeConversation(data)
		if err != nil {
			return nil, fmt.Errorf("could not decode conversation %s: %w", c.file, err)
		}
		messages = append(messages, loaded...)
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && c.file == "" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("could not read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt != "" {
		messages = append(messages, llm.Message{Role: llm.DefaultRole, Content: prompt})
	}

	req := &llm.ChatRequest{Messages: messages}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req.Normalized(), nil
}

func decodeConversation(data []byte) ([]llm.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var messages []llm.Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, err
		}
		return messages, nil
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return req.Messages, nil
}

func describe(err error) error {
	var sf *upstream.StageFailure
	if errors.As(err, &sf) {
		return fmt.Errorf("upstream %s failed with status %d: %s", sf.Stage, sf.Status, strings.TrimSpace(string(sf.Body)))
	}
	return err
}

// render writes reply to w, as styled markdown when w is a terminal.
func render(w io.Writer, reply string, raw bool) error {
	f, ok := w.(*os.File)
	if raw || !ok || !term.IsTerminal(int(f.Fd())) {
		_, err := fmt.Fprintln(w, reply)
		return err
	}

	style := "light"
	if termenv.NewOutput(f).HasDarkBackground() {
		style = "dark"
	}
	width := 80
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
		width = cols
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("could not create renderer: %w", err)
	}
	out, err := r.Render(reply)
	if err != nil {
		return fmt.Errorf("could not render reply: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
