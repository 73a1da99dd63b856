// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cli runs api handlers as cobra commands.
package cli

import (
	"io"

	"github.com/pedigreekit/pedigree/internal/api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// IO provides input/output streams for CLI commands.
type IO struct {
	In  io.Reader // stdin
	Out io.Writer // stdout
	Err io.Writer // stderr
}

// Deps are dependencies that write to the command's streams.
type Deps interface {
	SetIO(IO)
}

// ParseArgs populates a config from positional arguments.
type ParseArgs[I api.Message] func(cfg *I, args []string) error

// Render writes a handler's result to the command's output.
type Render[O any] func(w io.Writer, out *O) error

// RunE builds a cobra RunE: positional arguments are parsed into cfg, cfg is
// validated, the action runs with the command's streams attached and its
// result goes through render. A nil render discards the result.
func RunE[I api.Message, O any, D Deps](
	cfg *I,
	parseArgs ParseArgs[I],
	initDeps api.InitDeps[D],
	action api.HandlerFunc[I, O, D],
	render Render[O],
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := parseArgs(cfg, args); err != nil {
			return err
		}
		if err := (*cfg).Validate(); err != nil {
			return errors.Wrap(err, "invalid arguments")
		}
		deps, err := initDeps(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "initializing dependencies")
		}
		deps.SetIO(IO{
			In:  cmd.InOrStdin(),
			Out: cmd.OutOrStdout(),
			Err: cmd.ErrOrStderr(),
		})
		out, err := action(cmd.Context(), *cfg, deps)
		if err != nil {
			return err
		}
		if render == nil || out == nil {
			return nil
		}
		return errors.Wrap(render(cmd.OutOrStdout(), out), "writing output")
	}
}
