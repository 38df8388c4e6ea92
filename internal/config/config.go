// Package config resolves taxgen settings from defaults, a YAML config file,
// TAXGEN_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/taxgen/internal/generate"
	"github.com/dshills/taxgen/internal/llm"
	"github.com/dshills/taxgen/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. TAXGEN_LLM_PROVIDER.
const EnvPrefix = "TAXGEN"

// FileName is the config file looked up in the working directory.
const FileName = "taxgen.yaml"

// LLM configures the content backend.
type LLM struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
}

// Generation configures the retry and validation policy.
type Generation struct {
	MaxAttempts         int  `mapstructure:"max_attempts" yaml:"max_attempts"`
	MinFacts            int  `mapstructure:"min_facts" yaml:"min_facts"`
	StrictConsistency   bool `mapstructure:"strict_consistency" yaml:"strict_consistency"`
	TrustEmbeddedAnswer bool `mapstructure:"trust_embedded_answer" yaml:"trust_embedded_answer"`
}

// Store configures case persistence.
type Store struct {
	Type       string `mapstructure:"type" yaml:"type"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	S3Bucket   string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region   string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Prefix   string `mapstructure:"s3_prefix" yaml:"s3_prefix"`
	// Static S3 credentials. When empty the default AWS credential chain
	// applies.
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id" yaml:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key" yaml:"aws_secret_access_key,omitempty"`
}

// Templates points at an optional domain template file.
type Templates struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Log configures the logger.
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the fully resolved configuration.
type Config struct {
	LLM        LLM        `mapstructure:"llm" yaml:"llm"`
	Generation Generation `mapstructure:"generation" yaml:"generation"`
	Store      Store      `mapstructure:"store" yaml:"store"`
	Templates  Templates  `mapstructure:"templates" yaml:"templates"`
	Log        Log        `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	g := generate.DefaultConfig()
	return Config{
		LLM: LLM{
			Provider:    "anthropic",
			Temperature: llm.DefaultTemperature,
			Timeout:     2 * time.Minute,
			Burst:       1,
		},
		Generation: Generation{
			MaxAttempts:       g.MaxAttempts,
			MinFacts:          g.MinFacts,
			StrictConsistency: g.StrictConsistency,
		},
		Store: Store{
			Type:       "file",
			Dir:        store.DefaultDir,
			SQLitePath: store.DefaultSQLitePath,
			S3Prefix:   "taxgen",
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// LoadDotenv loads .env files into the process environment. Missing files are
// skipped; variables already set are not overridden.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load resolves the configuration. path names an explicit config file; when
// empty, ./taxgen.yaml and $HOME/.taxgen/config.yaml are tried and a missing
// file is not an error. binds maps config keys to flag names in flags; a bound
// flag overrides the key only when it was set on the command line.
func Load(path string, flags *pflag.FlagSet, binds map[string]string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taxgen"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	if flags != nil {
		for key, flag := range binds {
			f := flags.Lookup(flag)
			if f == nil {
				return Config{}, fmt.Errorf("config: no flag %q for key %s", flag, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when no
// config file mentions them.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)

	v.SetDefault("generation.max_attempts", d.Generation.MaxAttempts)
	v.SetDefault("generation.min_facts", d.Generation.MinFacts)
	v.SetDefault("generation.strict_consistency", d.Generation.StrictConsistency)
	v.SetDefault("generation.trust_embedded_answer", d.Generation.TrustEmbeddedAnswer)

	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.s3_bucket", d.Store.S3Bucket)
	v.SetDefault("store.s3_region", d.Store.S3Region)
	v.SetDefault("store.s3_prefix", d.Store.S3Prefix)
	v.SetDefault("store.aws_access_key_id", d.Store.AWSAccessKeyID)
	v.SetDefault("store.aws_secret_access_key", d.Store.AWSSecretAccessKey)

	v.SetDefault("templates.path", d.Templates.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

var storeTypes = []string{"file", "sqlite", "s3", "memory"}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if !slices.Contains(llm.Providers, strings.ToLower(c.LLM.Provider)) {
		return fmt.Errorf("config: llm.provider %q not one of %s", c.LLM.Provider, strings.Join(llm.Providers, ", "))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature %v out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("config: llm.requests_per_second must not be negative")
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("config: generation.max_attempts must be at least 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Generation.MinFacts < 1 {
		return fmt.Errorf("config: generation.min_facts must be at least 1, got %d", c.Generation.MinFacts)
	}
	if !slices.Contains(storeTypes, strings.ToLower(c.Store.Type)) {
		return fmt.Errorf("config: store.type %q not one of %s", c.Store.Type, strings.Join(storeTypes, ", "))
	}
	if strings.EqualFold(c.Store.Type, "s3") && c.Store.S3Bucket == "" {
		return fmt.Errorf("config: store.s3_bucket is required for the s3 store")
	}
	if (c.Store.AWSAccessKeyID == "") != (c.Store.AWSSecretAccessKey == "") {
		return fmt.Errorf("config: store.aws_access_key_id and store.aws_secret_access_key must be set together")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q not one of json, console", c.Log.Format)
	}
	return nil
}

// GenerationConfig converts the generation section for the orchestrator.
func (c Config) GenerationConfig() generate.Config {
	return generate.Config{
		MaxAttempts:         c.Generation.MaxAttempts,
		MinFacts:            c.Generation.MinFacts,
		StrictConsistency:   c.Generation.StrictConsistency,
		TrustEmbeddedAnswer: c.Generation.TrustEmbeddedAnswer,
	}
}

// StoreConfig converts the store section for store.New.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Type:       c.Store.Type,
		Dir:        c.Store.Dir,
		SQLitePath: c.Store.SQLitePath,
		S3Bucket:   c.Store.S3Bucket,
		S3Region:   c.Store.S3Region,
		S3Prefix:   c.Store.S3Prefix,

		AWSAccessKey: c.Store.AWSAccessKeyID,
		AWSSecretKey: c.Store.AWSSecretAccessKey,
	}
}

// LLMOptions converts the llm section for llm.NewGenerator.
func (c Config) LLMOptions(debug bool) llm.Options {
	model := c.LLM.Model
	if model == "" {
		model = llm.DefaultModel(c.LLM.Provider)
	}
	return llm.Options{
		Provider:    strings.ToLower(c.LLM.Provider),
		Model:       model,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Debug:       debug,
	}
}

// YAML renders c as a config file. The S3 secret key is masked.
func (c Config) YAML() ([]byte, error) {
	if c.Store.AWSSecretAccessKey != "" {
		c.Store.AWSSecretAccessKey = "********"
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return b, nil
}

// WriteDefault writes the default configuration to path, refusing to replace
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	b, err := Default().YAML()
	if err != nil {
		return err
	}
	header := "# taxgen configuration\n" +
		"# Precedence: flags > TAXGEN_* environment > this file > defaults.\n" +
		"# API keys are read from ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY or GROQ_API_KEY.\n\n"
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(header), b...), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
