// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type testConfig struct {
	Name string
}

func (c testConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type testDeps struct {
	IO IO
}

func (d *testDeps) SetIO(cio IO) { d.IO = cio }

type greeting struct {
	Text string
}

func greet(ctx context.Context, cfg testConfig, deps *testDeps) (*greeting, error) {
	if cfg.Name == "nobody" {
		return nil, errors.New("no one to greet")
	}
	fmt.Fprint(deps.IO.Err, "greeting "+cfg.Name)
	return &greeting{Text: "Hello " + cfg.Name}, nil
}

func initTestDeps(context.Context) (*testDeps, error) {
	return &testDeps{}, nil
}

func nameFromArgs(cfg *testConfig, args []string) error {
	if len(args) > 0 {
		cfg.Name = args[0]
	}
	return nil
}

func renderGreeting(w io.Writer, g *greeting) error {
	_, err := fmt.Fprintln(w, g.Text)
	return err
}

func TestRunE(t *testing.T) {
	for _, tc := range []struct {
		name       string
		args       []string
		render     Render[greeting]
		want       string
		wantStderr string
		wantErr    bool
	}{
		{name: "rendered", args: []string{"World"}, render: renderGreeting, want: "Hello World\n", wantStderr: "greeting World"},
		{name: "no render", args: []string{"World"}, wantStderr: "greeting World"},
		{name: "validation failure", wantErr: true},
		{name: "action failure", args: []string{"nobody"}, render: renderGreeting, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig{}
			cmd := &cobra.Command{
				Use:           "test",
				RunE:          RunE(&cfg, nameFromArgs, initTestDeps, greet, tc.render),
				SilenceUsage:  true,
				SilenceErrors: true,
			}
			cmd.SetArgs(tc.args)
			var out, errOut bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			err := cmd.Execute()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got := out.String(); got != tc.want {
				t.Errorf("stdout = %q, want %q", got, tc.want)
			}
			if got := errOut.String(); got != tc.wantStderr {
				t.Errorf("stderr = %q, want %q", got, tc.wantStderr)
			}
		})
	}
}
