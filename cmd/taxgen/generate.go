package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/taxgen/internal/domain"
	"github.com/dshills/taxgen/internal/generate"
	"github.com/dshills/taxgen/internal/render"
	"github.com/dshills/taxgen/internal/schema"
)

// generateFlags are the flags shared by generate and generate-all.
type generateFlags struct {
	force       bool
	maxAttempts int
	context     string
	format      string
	out         string
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.force, "force", false, "regenerate even when a case is already stored")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "attempts per domain (config value when 0)")
	cmd.Flags().StringVar(&f.context, "context", "", "additional context appended to the domain prompt")
	cmd.Flags().StringVar(&f.format, "format", "json", "output format: json or markdown")
	cmd.Flags().StringVar(&f.out, "out", "", "write output to this file instead of stdout")
}

func (f *generateFlags) options() generate.Options {
	return generate.Options{ForceRegenerate: f.force, MaxAttempts: f.maxAttempts, Context: f.context}
}

func (f *generateFlags) validate() error {
	switch f.format {
	case "json", "markdown":
	default:
		return withCode(exitCodeBadInput, fmt.Errorf("--format must be json or markdown, got %q", f.format))
	}
	if f.maxAttempts < 0 {
		return withCode(exitCodeBadInput, fmt.Errorf("--max-attempts must not be negative"))
	}
	return nil
}

func newGenerateCmd(g *globalFlags) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate <domain>",
		Short: "Generate one validated case for a tax domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			if err := a.buildOrchestrator(g.debug); err != nil {
				return err
			}
			return runGenerate(cmd, a, args[0], f)
		},
	}
	f.register(cmd)
	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, name string, f *generateFlags) error {
	res, err := a.orch.GenerateCase(cmd.Context(), name, f.options())
	if err != nil {
		return classifyRunError(err)
	}
	if !res.OK() {
		fmt.Fprint(cmd.ErrOrStderr(), render.RenderSummary(a.orch.Stats(), nil))
		return exhaustedError(res)
	}

	out, err := renderCases(f.format, []*schema.Case{res.Case}, false)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), f.out, out); err != nil {
		return err
	}
	if res.Cached {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: using stored case\n", name)
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), render.RenderSummary(a.orch.Stats(), nil))
	return nil
}

func newGenerateAllCmd(g *globalFlags) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate-all",
		Short: "Generate a case for every configured domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			if err := a.buildOrchestrator(g.debug); err != nil {
				return err
			}
			return runGenerateAll(cmd, a, f)
		},
	}
	f.register(cmd)
	return cmd
}

func runGenerateAll(cmd *cobra.Command, a *app, f *generateFlags) error {
	batch, err := a.orch.GenerateAllDomains(cmd.Context(), f.options())
	if err != nil {
		return classifyRunError(err)
	}

	out, err := renderCases(f.format, batch.Cases, true)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), f.out, out); err != nil {
		return err
	}
	fmt.Fprint(cmd.ErrOrStderr(), render.RenderSummary(a.orch.Stats(), batch))

	if n := len(batch.Failures); n > 0 {
		names := make([]string, 0, n)
		for _, fl := range batch.Failures {
			names = append(names, fl.Domain)
		}
		return withCode(exitCodeExhausted, fmt.Errorf("%d of %d domains produced no case: %s",
			n, len(batch.Results), strings.Join(names, ", ")))
	}
	return nil
}

// renderCases renders cases in format. list selects the JSON array form.
func renderCases(format string, cases []*schema.Case, list bool) ([]byte, error) {
	if format == "markdown" {
		parts := make([]string, 0, len(cases))
		for _, c := range cases {
			parts = append(parts, render.RenderMarkdown(c))
		}
		return []byte(strings.Join(parts, "\n---\n\n")), nil
	}
	if list {
		return render.RenderJSONList(cases)
	}
	return render.RenderJSON(cases[0])
}

// classifyRunError maps an orchestrator error to an exit code.
func classifyRunError(err error) error {
	var unknown *domain.UnknownDomainError
	switch {
	case errors.As(err, &unknown):
		return withCode(exitCodeBadInput, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return withCode(exitCodeGeneric, err)
	default:
		return withCode(exitCodeBackend, err)
	}
}

// exhaustedError reports a domain that produced no case. A run where every
// attempt failed at the backend is a backend error rather than exhaustion.
func exhaustedError(res *generate.Result) error {
	backendOnly := len(res.Attempts) > 0
	for _, at := range res.Attempts {
		if at.Outcome != generate.OutcomeBackendError {
			backendOnly = false
			break
		}
	}
	err := res.Failure()
	if backendOnly {
		last := res.Attempts[len(res.Attempts)-1].Err
		return withCode(exitCodeBackend, fmt.Errorf("%w: %v", err, last))
	}
	return withCode(exitCodeExhausted, err)
}
