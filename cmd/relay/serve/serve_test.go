package servecmder

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

const serveConfig = `
[upstream]
api_key = "sk-file"
model = "file-model"

[server]
listen = ":9000"
request_timeout = "30s"
`

var _ = Describe("Serve Command", func() {
	var (
		tmpDir     string
		configFile string
		stdout     *bytes.Buffer
		stderr     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "relay-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(configFile, []byte(serveConfig), 0o600)).To(Succeed())
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	parse := func(env map[string]string, args ...string) *serveCommander {
		cmder := &serveCommander{lookup: envOf(env)}
		Expect(cmder.command().ParseFlags(args)).To(Succeed())
		return cmder
	}

	Context("config resolution", func() {
		It("loads the file named by --config", func() {
			cmder := parse(nil, "--config", configFile)

			cfg, path, err := cmder.loadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(configFile))
			Expect(cfg.Upstream.APIKey).To(Equal("sk-file"))
			Expect(cfg.Server.ListenAddr).To(Equal(":9000"))
			Expect(cfg.Server.RequestTimeout.Seconds()).To(Equal(30.0))
		})

		It("lets the environment override the file", func() {
			cmder := parse(map[string]string{config.EnvModel: "env-model"}, "--config", configFile)

			cfg, _, err := cmder.loadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Upstream.Model).To(Equal("env-model"))
		})

		It("lets --listen override the file and the environment", func() {
			cmder := parse(map[string]string{config.EnvListen: ":7000"}, "--config", configFile, "--listen", "127.0.0.1:0")

			cfg, _, err := cmder.loadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.ListenAddr).To(Equal("127.0.0.1:0"))
		})
	})

	Context("flags", func() {
		It("watches the config file by default", func() {
			Expect(parse(nil).watch).To(BeTrue())
			Expect(parse(nil, "--watch=false").watch).To(BeFalse())
		})

		It("enables debug logging with --debug", func() {
			Expect(parse(nil, "--debug").debug).To(BeTrue())
		})
	})

	Context("errors", func() {
		execute := func(args ...string) error {
			cmd := newServeCmd(envOf(nil))
			cmd.SetArgs(args)
			cmd.SetOut(stdout)
			cmd.SetErr(stderr)
			return cmd.Execute()
		}

		It("fails before serving when the config file does not decode", func() {
			Expect(os.WriteFile(configFile, []byte("[server\nlisten = "), 0o600)).To(Succeed())

			err := execute("--config", configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("could not load config"))
			Expect(stdout.String()).To(BeEmpty())
			Expect(stderr.String()).To(BeEmpty())
		})

		It("fails on a malformed duration in the environment", func() {
			cmder := parse(map[string]string{config.EnvRequestTO: "soon"}, "--config", configFile)

			_, _, err := cmder.loadConfig()
			Expect(err).To(MatchError(ContainSubstring(config.EnvRequestTO)))
		})

		It("rejects positional arguments without printing usage", func() {
			err := execute("extra")
			Expect(err).To(HaveOccurred())
			Expect(stdout.String()).To(BeEmpty())
		})
	})
})
