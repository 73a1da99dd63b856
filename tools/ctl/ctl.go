// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"log"

	"github.com/pedigreekit/pedigree/tools/ctl/command/inspect"
	"github.com/pedigreekit/pedigree/tools/ctl/command/migrate"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Maintenance tool for stored pedigree documents",
}

func init() {
	rootCmd.AddCommand(migrate.Command())
	rootCmd.AddCommand(inspect.Command())
}

func main() {
	flag.Parse()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
