// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cheggaaa/pb"
	"github.com/fatih/color"
	"github.com/pedigreekit/pedigree/internal/cli"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pedigreekit/pedigree/pkg/pedigree/migrations"
	"github.com/pedigreekit/pedigree/pkg/pedigree/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the migrate command.
type Config struct {
	Store        string
	DryRun       bool
	FamilyPrefix string
	Verbose      bool
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Store == "" {
		return errors.New("store is required")
	}
	if c.FamilyPrefix == "" {
		return errors.New("family-prefix is required")
	}
	return nil
}

// Deps holds dependencies for the command.
type Deps struct {
	IO        cli.IO
	OpenStore func(ctx context.Context, uri string) (store.ListableStore, error)
}

func (d *Deps) SetIO(cio cli.IO) { d.IO = cio }

// InitDeps initializes Deps.
func InitDeps(context.Context) (*Deps, error) {
	return &Deps{OpenStore: store.Open}, nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 argument: store-uri")
	}
	cfg.Store = args[0]
	return nil
}

// Summary reports the outcome of a migration run.
type Summary struct {
	DryRun    bool
	Total     int
	Updated   int
	Unchanged int
	Failed    []string
	Warnings  int
	// Steps counts documents by applied update comment.
	Steps map[string]int
}

// Handler upgrades every stored pedigree document to the current format.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*Summary, error) {
	s, err := deps.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	if c, ok := s.(io.Closer); ok {
		defer c.Close()
	}
	assets, err := s.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing assets")
	}
	var docs []store.Asset
	for _, a := range assets {
		if a.Kind == store.DocumentKind {
			docs = append(docs, a)
		}
	}
	sum := &Summary{DryRun: cfg.DryRun, Total: len(docs), Steps: make(map[string]int)}
	logOut := io.Discard
	if cfg.Verbose {
		logOut = deps.IO.Err
	}
	logger := log.New(logOut, "", log.LstdFlags)
	bar := pb.New(len(docs))
	bar.Output = deps.IO.Err
	bar.ShowTimeLeft = true
	bar.Start()
	defer bar.Finish()
	for _, a := range docs {
		bar.Increment()
		applied, err := migrateOne(ctx, s, a, cfg, migrations.Env{
			SubjectID:     a.Subject,
			FamilyContext: strings.HasPrefix(a.Subject, cfg.FamilyPrefix),
			Logger:        logger,
			Warn:          func(string) { sum.Warnings++ },
		})
		if err != nil {
			logger.Printf("ERROR: %s: %v", a, err)
			sum.Failed = append(sum.Failed, a.Subject)
			continue
		}
		if len(applied) == 0 {
			sum.Unchanged++
			continue
		}
		sum.Updated++
		for _, c := range applied {
			sum.Steps[c]++
		}
	}
	bar.Finish()
	return sum, nil
}

func migrateOne(ctx context.Context, s store.Store, a store.Asset, cfg Config, env migrations.Env) ([]string, error) {
	data, err := store.ReadAll(ctx, s, a)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, err
	}
	doc, applied, err := migrations.ApplyDocument(doc, env)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 || cfg.DryRun {
		return applied, nil
	}
	out, err := doc.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	if err := store.WriteAll(ctx, s, a, out); err != nil {
		return nil, errors.Wrap(err, "writing document")
	}
	return applied, nil
}

// writeSummary prints the per-update counts in registry order.
func writeSummary(w io.Writer, sum *Summary) error {
	verb := "Updated"
	if sum.DryRun {
		verb = "Would update"
	}
	pct := 0.
	if sum.Total > 0 {
		pct = 100. * float64(sum.Updated) / float64(sum.Total)
	}
	fmt.Fprintf(w, "%s %s/%d documents (%2.1f%%)\n", verb, color.GreenString("%d", sum.Updated), sum.Total, pct)
	for _, m := range migrations.All {
		if n := sum.Steps[m.Comment]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", m.Comment, n)
		}
	}
	if sum.Warnings > 0 {
		fmt.Fprintf(w, "%s %d\n", color.YellowString("Warnings:"), sum.Warnings)
	}
	if len(sum.Failed) > 0 {
		fmt.Fprintf(w, "%s %s\n", color.RedString("Failed:"), strings.Join(sum.Failed, ", "))
	}
	return nil
}

// Command creates a new migrate command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "migrate [--dryrun] [--family-prefix FAM] <store-uri>",
		Short: "Upgrade stored pedigree documents to the current format",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
			writeSummary,
		),
	}
	cmd.Flags().AddGoFlagSet(flagSet(cmd.Name(), &cfg))
	return cmd
}

// flagSet returns the command-line flags for the Config struct.
func flagSet(name string, cfg *Config) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.BoolVar(&cfg.DryRun, "dryrun", false, "report the updates without writing them")
	set.StringVar(&cfg.FamilyPrefix, "family-prefix", "FAM", "subject id prefix that identifies families")
	set.BoolVar(&cfg.Verbose, "v", false, "log each applied update")
	return set
}
