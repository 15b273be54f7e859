package askcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/responses"
	"github.com/papercomputeco/relay/pkg/upstream/upstreamtest"
)

func noEnv(string) (string, bool) { return "", false }

var _ = Describe("Ask Command", func() {
	var (
		ctx      context.Context
		tmpDir   string
		provider *upstreamtest.Provider
		stdout   *bytes.Buffer
		stderr   *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "relay-ask-test-*")
		Expect(err).NotTo(HaveOccurred())
		provider = upstreamtest.NewProvider("hello from the model")
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		provider.Close()
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(extra string) string {
		path := filepath.Join(tmpDir, "config.toml")
		content := fmt.Sprintf("[upstream]\napi_key = \"sk-test\"\nbase_url = %q\n%s", provider.URL(), extra)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	execute := func(stdin string, args ...string) error {
		cmd := newAskCmd(noEnv)
		cmd.SetArgs(args)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		return cmd.ExecuteContext(ctx)
	}

	sentInput := func() []responses.InputItem {
		calls := provider.Calls()
		Expect(calls).To(HaveLen(1))
		var req responses.Request
		Expect(json.Unmarshal(calls[0].Body, &req)).To(Succeed())
		return req.Input
	}

	It("sends the joined arguments as a single user turn", func() {
		cfg := writeConfig("")

		Expect(execute("", "--config", cfg, "what", "is", "up")).To(Succeed())

		Expect(stdout.String()).To(Equal("hello from the model\n"))
		input := sentInput()
		Expect(input).To(HaveLen(1))
		Expect(input[0].Role).To(Equal("user"))
		Expect(input[0].Content[0].Text).To(Equal("what is up"))
	})

	It("reads the prompt from stdin when no arguments are given", func() {
		cfg := writeConfig("")

		Expect(execute("  piped prompt\n", "--config", cfg)).To(Succeed())

		input := sentInput()
		Expect(input).To(HaveLen(1))
		Expect(input[0].Content[0].Text).To(Equal("piped prompt"))
	})

	It("sends a conversation file with the system message first and the prompt last", func() {
		cfg := writeConfig("")
		conv := filepath.Join(tmpDir, "conversation.json")
		data, err := json.Marshal([]llm.Message{
			{Content: "first question"},
			{Role: "assistant", Content: "first answer"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(conv, data, 0o600)).To(Succeed())

		Expect(execute("", "--config", cfg, "--file", conv, "--system", "be brief", "follow up")).To(Succeed())

		input := sentInput()
		Expect(input).To(HaveLen(4))
		roles := []string{input[0].Role, input[1].Role, input[2].Role, input[3].Role}
		Expect(roles).To(Equal([]string{"system", "user", "assistant", "user"}))
		Expect(input[2].Content[0].Type).To(Equal("output_text"))
		Expect(input[3].Content[0].Text).To(Equal("follow up"))
	})

	It("accepts a conversation file in request form", func() {
		cfg := writeConfig("")
		conv := filepath.Join(tmpDir, "request.json")
		Expect(os.WriteFile(conv, []byte(`{"messages":[{"content":"only turn"}]}`), 0o600)).To(Succeed())

		Expect(execute("", "--config", cfg, "--file", conv)).To(Succeed())

		input := sentInput()
		Expect(input).To(HaveLen(1))
		Expect(input[0].Content[0].Text).To(Equal("only turn"))
	})

	It("uses the threaded protocol when an agent is configured", func() {
		cfg := writeConfig("agent_id = \"asst_test\"\n")

		Expect(execute("", "--config", cfg, "hi")).To(Succeed())

		Expect(stdout.String()).To(Equal("hello from the model\n"))
		Expect(provider.Routes()).To(ContainElement("POST /threads"))
		Expect(provider.Routes()).NotTo(ContainElement("POST /responses"))
	})

	It("reports the failing stage and upstream status", func() {
		cfg := writeConfig("")
		provider.Fail("POST /responses", 429, `{"error":"slow down"}`)

		err := execute("", "--config", cfg, "hi")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("create_response"))
		Expect(err.Error()).To(ContainSubstring("429"))
		Expect(err.Error()).To(ContainSubstring("slow down"))
		Expect(stdout.String()).To(BeEmpty())
		Expect(stderr.String()).NotTo(ContainSubstring("Usage:"))
	})

	It("fails without calling upstream when there is nothing to ask", func() {
		cfg := writeConfig("")

		err := execute("", "--config", cfg)

		Expect(err).To(MatchError(llm.ErrNoMessages))
		Expect(provider.Calls()).To(BeEmpty())
	})

	It("fails without calling upstream when no API key is configured", func() {
		path := filepath.Join(tmpDir, "nokey.toml")
		Expect(os.WriteFile(path, []byte(fmt.Sprintf("[upstream]\nbase_url = %q\n", provider.URL())), 0o600)).To(Succeed())

		err := execute("", "--config", path, "hi")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("API key"))
		Expect(provider.Calls()).To(BeEmpty())
	})
})
