package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray taxgen.yaml or
// .env is picked up, and points HOME there as well.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.LLM, cfg.LLM)
	assert.Equal(t, want.Generation, cfg.Generation)
	assert.Equal(t, want.Store, cfg.Store)
	assert.Empty(t, cfg.File)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.True(t, cfg.Generation.StrictConsistency)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: groq
  timeout: 30s
generation:
  max_attempts: 5
  strict_consistency: false
store:
  type: sqlite
  sqlite_path: cases.db
`), 0o644))

	t.Setenv("TAXGEN_GENERATION_MAX_ATTEMPTS", "7")
	t.Setenv("TAXGEN_LOG_FORMAT", "json")

	cfg, err := Load(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 7, cfg.Generation.MaxAttempts, "env overrides file")
	assert.False(t, cfg.Generation.StrictConsistency)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Generation.MinFacts, "unset keys keep defaults")

	sc := cfg.StoreConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "cases.db", sc.SQLitePath)
}

func TestLoad_WorkingDirFile(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("llm:\n  provider: openai\n"), 0o644))
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, FileName, filepath.Base(cfg.File))
}

func TestLoad_FlagsOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("TAXGEN_GENERATION_MAX_ATTEMPTS", "7")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-attempts", 3, "")
	fs.String("provider", "anthropic", "")
	require.NoError(t, fs.Parse([]string{"--max-attempts", "9"}))

	cfg, err := Load("", fs, map[string]string{
		"generation.max_attempts": "max-attempts",
		"llm.provider":            "provider",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Generation.MaxAttempts)
	assert.Equal(t, "anthropic", cfg.LLM.Provider, "unchanged flag must not override")

	_, err = Load("", fs, map[string]string{"llm.model": "no-such-flag"})
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := inTempDir(t)
	_, err := Load(filepath.Join(dir, "missing.yaml"), nil, nil)
	assert.Error(t, err, "an explicit missing file is an error")

	t.Setenv("TAXGEN_LLM_PROVIDER", "cohere")
	_, err = Load("", nil, nil)
	assert.ErrorContains(t, err, "llm.provider")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default", func(*Config) {}, ""},
		{"zero attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }, "max_attempts"},
		{"zero facts", func(c *Config) { c.Generation.MinFacts = 0 }, "min_facts"},
		{"hot temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"negative rate", func(c *Config) { c.LLM.RequestsPerSecond = -1 }, "requests_per_second"},
		{"bad store", func(c *Config) { c.Store.Type = "tape" }, "store.type"},
		{"s3 without bucket", func(c *Config) { c.Store.Type = "s3" }, "s3_bucket"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"provider case", func(c *Config) { c.LLM.Provider = "OpenAI" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConversions(t *testing.T) {
	c := Default()
	c.LLM.Provider = "OpenAI"
	c.Generation.TrustEmbeddedAnswer = true

	opts := c.LLMOptions(true)
	assert.Equal(t, "openai", opts.Provider)
	assert.NotEmpty(t, opts.Model, "default model filled in")
	assert.True(t, opts.Debug)

	g := c.GenerationConfig()
	assert.Equal(t, 3, g.MaxAttempts)
	assert.True(t, g.TrustEmbeddedAnswer)
}

func TestWriteDefault(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "conf", "taxgen.yaml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "must not overwrite")

	cfg, err := Load(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Default().LLM, cfg.LLM)
	assert.Equal(t, Default().Store, cfg.Store)
}

func TestLoadDotenv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, LoadDotenv(), "missing .env is fine")

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TAXGEN_STORE_TYPE=memory\n"), 0o644))
	t.Setenv("TAXGEN_STORE_TYPE", "")
	os.Unsetenv("TAXGEN_STORE_TYPE")
	require.NoError(t, LoadDotenv(path))

	cfg, err := Load("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestLoad_S3CredentialsFromEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("TAXGEN_STORE_TYPE", "s3")
	t.Setenv("TAXGEN_STORE_S3_BUCKET", "cases-bucket")
	t.Setenv("TAXGEN_STORE_AWS_ACCESS_KEY_ID", "AKIDSTATIC")
	t.Setenv("TAXGEN_STORE_AWS_SECRET_ACCESS_KEY", "static-secret")

	cfg, err := Load("", nil, nil)
	require.NoError(t, err)
	sc := cfg.StoreConfig()
	assert.Equal(t, "AKIDSTATIC", sc.AWSAccessKey)
	assert.Equal(t, "static-secret", sc.AWSSecretKey)

	b, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "static-secret")
	assert.Contains(t, string(b), "AKIDSTATIC")

	t.Setenv("TAXGEN_STORE_AWS_SECRET_ACCESS_KEY", "")
	_, err = Load("", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}
