package config_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
)

func envOf(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

const fileConfig = `
debug = true

[upstream]
api_key = "sk-file"
model = "gpt-file"
timeout = "30s"

[server]
listen = ":9090"
allowed_origins = ["https://example.com"]
request_timeout = "75s"
`

var _ = Describe("Load", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	writeFile := func(content string) string {
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("returns defaults with an empty environment", func() {
		cfg, err := config.Load("", envOf(nil))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.ListenAddr).To(Equal(":8080"))
		Expect(cfg.Server.AllowedOrigins).To(Equal([]string{"*"}))
		Expect(cfg.Server.RequestTimeout.Duration).To(Equal(90 * time.Second))
		Expect(cfg.Upstream.Timeout.Duration).To(Equal(2 * time.Minute))
		Expect(cfg.Upstream.Stateful()).To(BeFalse())
		Expect(cfg.Upstream.Validate()).To(MatchError(config.ErrMissingAPIKey))
	})

	It("reads the TOML file", func() {
		cfg, err := config.Load(writeFile(fileConfig), envOf(nil))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Debug).To(BeTrue())
		Expect(cfg.Upstream.APIKey).To(Equal("sk-file"))
		Expect(cfg.Upstream.Model).To(Equal("gpt-file"))
		Expect(cfg.Upstream.Timeout.Duration).To(Equal(30 * time.Second))
		Expect(cfg.Server.ListenAddr).To(Equal(":9090"))
		Expect(cfg.Server.AllowedOrigins).To(Equal([]string{"https://example.com"}))
		Expect(cfg.Server.RequestTimeout.Duration).To(Equal(75 * time.Second))
	})

	It("lets the environment override the file", func() {
		cfg, err := config.Load(writeFile(fileConfig), envOf(map[string]string{
			config.EnvAPIKey:         "sk-env",
			config.EnvAgentID:        "asst_1",
			config.EnvAllowedOrigins: "https://a.test, https://b.test",
			config.EnvRequestTO:      "2m",
			config.EnvDebug:          "false",
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Upstream.APIKey).To(Equal("sk-env"))
		Expect(cfg.Upstream.Model).To(Equal("gpt-file"))
		Expect(cfg.Upstream.Stateful()).To(BeTrue())
		Expect(cfg.Server.AllowedOrigins).To(Equal([]string{"https://a.test", "https://b.test"}))
		Expect(cfg.Server.RequestTimeout.Duration).To(Equal(2 * time.Minute))
		Expect(cfg.Debug).To(BeFalse())
		Expect(cfg.Upstream.Validate()).To(Succeed())
	})

	It("ignores empty environment values", func() {
		cfg, err := config.Load("", envOf(map[string]string{config.EnvAgentID: ""}))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Upstream.Stateful()).To(BeFalse())
	})

	It("rejects malformed durations", func() {
		_, err := config.Load("", envOf(map[string]string{config.EnvUpstreamTO: "soon"}))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(config.EnvUpstreamTO))
	})

	It("rejects a missing file", func() {
		_, err := config.Load(filepath.Join(tmpDir, "nope.toml"), envOf(nil))
		Expect(err).To(HaveOccurred())
	})

	It("treats a blank key as missing", func() {
		Expect(config.Upstream{APIKey: "   "}.Validate()).To(MatchError(config.ErrMissingAPIKey))
	})
})

// replaceFile swaps content in with a rename so the watcher never sees a
// half-written file.
func replaceFile(path, content string) {
	tmp := path + ".tmp"
	Expect(os.WriteFile(tmp, []byte(content), 0o600)).To(Succeed())
	Expect(os.Rename(tmp, path)).To(Succeed())
}

var _ = Describe("Watch", func() {
	It("swaps in the new snapshot when the file changes", func() {
		tmpDir := GinkgoT().TempDir()
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[upstream]\nmodel = \"first\"\n"), 0o600)).To(Succeed())

		cfg, err := config.Load(path, envOf(nil))
		Expect(err).NotTo(HaveOccurred())
		store := config.NewStore(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		Expect(config.Watch(ctx, path, envOf(nil), store, zap.NewNop())).To(Succeed())

		replaceFile(path, "[upstream]\nmodel = \"second\"\n")

		Eventually(func() string {
			return store.Current().Upstream.Model
		}).WithTimeout(5 * time.Second).Should(Equal("second"))
	})

	It("keeps the previous snapshot when the new file is invalid", func() {
		tmpDir := GinkgoT().TempDir()
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[upstream]\nmodel = \"good\"\n"), 0o600)).To(Succeed())

		cfg, err := config.Load(path, envOf(nil))
		Expect(err).NotTo(HaveOccurred())
		store := config.NewStore(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		Expect(config.Watch(ctx, path, envOf(nil), store, zap.NewNop())).To(Succeed())

		replaceFile(path, "[upstream\nmodel = ")

		Consistently(func() string {
			return store.Current().Upstream.Model
		}).WithTimeout(300 * time.Millisecond).Should(Equal("good"))
	})
})
