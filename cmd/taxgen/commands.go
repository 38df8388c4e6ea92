package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/taxgen/internal/classify"
	"github.com/dshills/taxgen/internal/config"
	"github.com/dshills/taxgen/internal/domain"
	"github.com/dshills/taxgen/internal/numeric"
	"github.com/dshills/taxgen/internal/render"
	"github.com/dshills/taxgen/internal/schema"
	"github.com/dshills/taxgen/internal/store"
	"github.com/dshills/taxgen/internal/validate"
)

func newDomainsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List available tax domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range a.domains.All() {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
			}
			return tw.Flush()
		},
	}
}

func newDomainCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "domain <name>",
		Short: "Show the template for a tax domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			t, err := a.domains.Get(args[0])
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n\n", t.Name)
			fmt.Fprint(w, domain.RenderContext(t))
			if t.AnswerPattern != "" {
				fmt.Fprintf(w, "\nAnswer pattern: %s\n", t.AnswerPattern)
			}
			return nil
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var reclassify bool
	cmd := &cobra.Command{
		Use:   "validate <case.json>",
		Short: "Validate a stored case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()

			b, err := os.ReadFile(args[0])
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			c, err := schema.UnmarshalCase(b)
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			if reclassify {
				c.Facts = classify.New().Facts(c.FactContents())
			}

			w := cmd.OutOrStdout()
			defects := validate.Validate(c)
			if res := numeric.NewChecker().Check(c.FactContents(), c.Answer); res.Operator != "" {
				fmt.Fprintf(w, "derivation: %s\n", res.Operator)
			}
			if len(defects) == 0 {
				fmt.Fprintf(w, "%s: valid\n", args[0])
				return nil
			}
			for _, d := range defects {
				fmt.Fprintf(w, "- %s: %s\n", d.Field, d.Message)
			}
			a.logger.Debug("case invalid", zap.String("path", args[0]), zap.Int("defects", len(defects)))
			return withCode(exitCodeExhausted, fmt.Errorf("%s: %d defects", args[0], len(defects)))
		},
	}
	cmd.Flags().BoolVar(&reclassify, "reclassify", false, "recompute fact categories before validating")
	return cmd
}

// defaultTemplatesFile is the template file written by templates init and
// extended by templates add when --templates is not set.
const defaultTemplatesFile = "templates.yaml"

func newTemplatesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage domain template files",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the built-in domains to a template file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultTemplatesFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return withCode(exitCodeBadInput, fmt.Errorf("%s already exists (use --force to replace it)", path))
			}
			if err := domain.Builtin().Save(path, domain.DefaultMetadata); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d domains to %s\n", len(domain.Builtin().List()), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "replace an existing file")

	addCmd := &cobra.Command{
		Use:   "add <domains-file>",
		Short: "Add or replace custom domains in the template file",
		Long: `Reads the domains in <domains-file> (same YAML or JSON layout as the
template file) and merges them into the file named by --templates, or
templates.yaml. A missing template file starts from the built-in domains.
Domains with an existing name are replaced in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			return runTemplatesAdd(cmd, a, args[0])
		},
	}
	cmd.AddCommand(initCmd, addCmd)
	return cmd
}

func runTemplatesAdd(cmd *cobra.Command, a *app, source string) error {
	target := a.cfg.Templates.Path
	if target == "" {
		target = defaultTemplatesFile
	}
	reg := a.domains
	if reg.Path() != target {
		if _, err := os.Stat(target); err == nil {
			if reg, err = domain.LoadFile(target); err != nil {
				return withCode(exitCodeBadInput, err)
			}
		} else {
			reg = domain.Builtin()
		}
	}

	custom, err := domain.LoadFile(source)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	for _, t := range custom.All() {
		if err := reg.Add(t); err != nil {
			return withCode(exitCodeBadInput, err)
		}
	}
	if err := reg.Save(target, domain.DefaultMetadata); err != nil {
		return err
	}
	// Re-read what was written so a file that does not load is reported now.
	if reg.Path() != "" {
		if err := reg.Reload(); err != nil {
			return err
		}
	} else if reg, err = domain.LoadFile(target); err != nil {
		return err
	}

	a.logger.Debug("templates updated", zap.String("path", target), zap.Strings("added", custom.List()))
	fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s (%d domains)\n",
		strings.Join(custom.List(), ", "), target, len(reg.List()))
	return nil
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored cases to a spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if xlsxPath == "" {
				return withCode(exitCodeBadInput, errors.New("--xlsx is required"))
			}
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}

			var cases []*schema.Case
			for _, name := range a.domains.List() {
				c, err := a.store.Load(cmd.Context(), name)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					a.logger.Warn("skipping unreadable case", zap.String("domain", name), zap.Error(err))
					continue
				}
				cases = append(cases, c)
			}
			if len(cases) == 0 {
				return withCode(exitCodeBadInput, errors.New("no stored cases to export"))
			}
			if err := render.WriteXLSX(xlsxPath, cases); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d cases to %s\n", len(cases), xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "destination .xlsx file")
	return cmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
		Long: `Configuration precedence, highest first:
  1. command-line flags
  2. TAXGEN_* environment variables (e.g. TAXGEN_LLM_PROVIDER)
  3. config file
  4. built-in defaults`,
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()
			b, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			if a.cfg.File != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "config file: %s\n", a.cfg.File)
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "no config file found, using defaults")
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return withCode(exitCodeBadInput, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.AddCommand(show, initCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taxgen %s\n", strings.TrimPrefix(version, "v"))
		},
	}
}
