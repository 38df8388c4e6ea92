package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/taxgen/internal/config"
	"github.com/dshills/taxgen/internal/domain"
	"github.com/dshills/taxgen/internal/generate"
	"github.com/dshills/taxgen/internal/llm"
	"github.com/dshills/taxgen/internal/logging"
	"github.com/dshills/taxgen/internal/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// Exit codes.
const (
	exitCodeGeneric   = 1
	exitCodeExhausted = 2
	exitCodeBadInput  = 3
	exitCodeBackend   = 4
)

// exitError carries a process exit code alongside the error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeGeneric
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "taxgen:", err)
		os.Exit(exitCode(err))
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	envFile    string
	debug      bool
}

// flagBinds maps config keys to the persistent flags that override them.
var flagBinds = map[string]string{
	"log.level":      "log-level",
	"templates.path": "templates",
	"llm.provider":   "provider",
	"llm.model":      "model",
	"store.type":     "store",
	"store.dir":      "output-dir",
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "taxgen",
		Short:         "Generate validated synthetic tax-law reasoning cases",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default ./taxgen.yaml or $HOME/.taxgen/config.yaml)")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.BoolVar(&g.debug, "debug", false, "log prompts and raw model responses")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("templates", "", "domain template file (YAML or JSON); built-in domains when empty")
	pf.String("provider", "anthropic", "LLM provider: anthropic, openai, google, groq")
	pf.String("model", "", "model name (provider default when empty)")
	pf.String("store", "file", "case store: file, sqlite, s3, memory")
	pf.String("output-dir", store.DefaultDir, "directory for the file store")

	root.AddCommand(
		newGenerateCmd(g),
		newGenerateAllCmd(g),
		newDomainsCmd(g),
		newDomainCmd(g),
		newValidateCmd(g),
		newTemplatesCmd(g),
		newExportCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return root
}

// app holds the components a command runs against.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	domains *domain.Registry
	store   store.Store
	orch    *generate.Orchestrator
}

// loadApp resolves configuration, the logger and the domain registry.
func loadApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	if err := config.LoadDotenv(g.envFile); err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	cfg, err := config.Load(g.configFile, cmd.Flags(), flagBinds)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	level := cfg.Log.Level
	if g.debug {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}

	domains := domain.Builtin()
	if cfg.Templates.Path != "" {
		domains, err = domain.LoadFile(cfg.Templates.Path)
		if err != nil {
			return nil, withCode(exitCodeBadInput, err)
		}
		logger.Debug("templates loaded", zap.String("path", cfg.Templates.Path), zap.Int("domains", len(domains.List())))
	}
	return &app{cfg: cfg, logger: logger, domains: domains}, nil
}

// openStore opens the configured case store.
func (a *app) openStore(ctx context.Context) error {
	st, err := store.New(ctx, a.cfg.StoreConfig())
	if err != nil {
		return withCode(exitCodeBackend, err)
	}
	a.store = st
	return nil
}

// buildOrchestrator wires the provider, generator and store into an
// orchestrator. openStore must have been called.
func (a *app) buildOrchestrator(debug bool) error {
	opts := a.cfg.LLMOptions(debug)
	provider, err := llm.NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return withCode(exitCodeBackend, err)
	}
	provider = llm.WithTimeout(provider, a.cfg.LLM.Timeout)
	provider = llm.WithRateLimit(provider, a.cfg.LLM.RequestsPerSecond, a.cfg.LLM.Burst)
	gen := llm.NewGenerator(provider, opts, a.logger.Named("llm"))

	a.orch = generate.New(a.domains, gen,
		generate.WithStore(a.store),
		generate.WithLogger(a.logger.Named("generate")),
		generate.WithConfig(a.cfg.GenerationConfig()),
		generate.WithBackend(gen.Backend()),
	)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := store.Close(a.store); err != nil {
			a.logger.Warn("closing case store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// writeOutput writes b to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, b []byte) error {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	if path == "" {
		_, err := w.Write(b)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
