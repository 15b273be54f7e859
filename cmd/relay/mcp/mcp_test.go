package mcpcmder

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/config"
)

func envOf(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

var _ = Describe("MCP Command", func() {
	var (
		tmpDir     string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "relay-mcp-test-*")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(configFile, []byte("[upstream]\nagent_id = \"asst_file\"\n"), 0o600)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	parse := func(env map[string]string, args ...string) *mcpCommander {
		cmder := &mcpCommander{version: "test", lookup: envOf(env)}
		Expect(cmder.command().ParseFlags(args)).To(Succeed())
		return cmder
	}

	It("layers the environment over the config file", func() {
		cmder := parse(map[string]string{config.EnvAPIKey: "sk-env"}, "--config", configFile)

		cfg, err := cmder.loadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Upstream.APIKey).To(Equal("sk-env"))
		Expect(cfg.Upstream.AgentID).To(Equal("asst_file"))
		Expect(cfg.Upstream.Stateful()).To(BeTrue())
	})

	It("parses --debug", func() {
		Expect(parse(nil, "--debug").debug).To(BeTrue())
		Expect(parse(nil).debug).To(BeFalse())
	})

	Context("errors", func() {
		var stdout, stderr *bytes.Buffer

		execute := func(args ...string) error {
			stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
			cmd := newMCPCmd("test", envOf(nil))
			cmd.SetArgs(args)
			cmd.SetOut(stdout)
			cmd.SetErr(stderr)
			return cmd.Execute()
		}

		It("fails before serving when the config file does not decode", func() {
			Expect(os.WriteFile(configFile, []byte("[upstream\n"), 0o600)).To(Succeed())

			err := execute("--config", configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("could not load config"))
			Expect(stdout.String()).To(BeEmpty())
			Expect(stderr.String()).To(BeEmpty())
		})

		It("rejects positional arguments without printing usage", func() {
			Expect(execute("extra")).NotTo(Succeed())
			Expect(stdout.String()).To(BeEmpty())
		})
	})
})
