// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/pedigreekit/pedigree/internal/cli"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pedigreekit/pedigree/pkg/pedigree/migrations"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the inspect command.
type Config struct {
	Path    string
	Subject string
	Family  bool
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	if c.Family && c.Subject == "" {
		return errors.New("family requires subject")
	}
	return nil
}

// Deps holds dependencies for the command.
type Deps struct {
	IO cli.IO
}

func (d *Deps) SetIO(cio cli.IO) { d.IO = cio }

// InitDeps initializes Deps.
func InitDeps(context.Context) (*Deps, error) {
	return &Deps{}, nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 argument: path (or - for stdin)")
	}
	cfg.Path = args[0]
	return nil
}

// Report describes a document as it would be loaded.
type Report struct {
	SourceVersion string   `yaml:"source_version"`
	Version       string   `yaml:"version"`
	ProbandID     int      `yaml:"proband_id"`
	Nodes         int      `yaml:"nodes"`
	PatientLinks  []string `yaml:"patient_links,omitempty"`
	Applied       []string `yaml:"applied,omitempty"`
	Warnings      []string `yaml:"warnings,omitempty"`
	HasSettings   bool     `yaml:"has_settings"`
}

// Handler migrates a single document in memory and reports the result.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*Report, error) {
	data, err := readInput(cfg.Path, deps.IO.In)
	if err != nil {
		return nil, errors.Wrap(err, "reading document")
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, err
	}
	r := &Report{SourceVersion: "legacy"}
	if v, ok := doc.Version(); ok {
		r.SourceVersion = v
	}
	env := migrations.Env{
		SubjectID:     cfg.Subject,
		FamilyContext: cfg.Family,
		Logger:        log.New(io.Discard, "", 0),
		Warn:          func(msg string) { r.Warnings = append(r.Warnings, msg) },
	}
	doc, r.Applied, err = migrations.ApplyDocument(doc, env)
	if err != nil {
		return nil, err
	}
	p, err := document.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	r.Version = p.Version
	r.ProbandID = p.ProbandID
	r.Nodes = len(p.Nodes)
	r.PatientLinks = p.PatientLinks()
	r.HasSettings = p.Settings != nil
	return r, nil
}

func writeReport(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "encoding report")
	}
	return enc.Close()
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// Command creates a new inspect command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "inspect [--subject <id>] [--family] <path|->",
		Short: "Show how a pedigree document would be upgraded and loaded",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
			writeReport,
		),
	}
	cmd.Flags().AddGoFlagSet(flagSet(cmd.Name(), &cfg))
	return cmd
}

// flagSet returns the command-line flags for the Config struct.
func flagSet(name string, cfg *Config) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.StringVar(&cfg.Subject, "subject", "", "the patient or family the document belongs to")
	set.BoolVar(&cfg.Family, "family", false, "treat subject as a family")
	return set
}
