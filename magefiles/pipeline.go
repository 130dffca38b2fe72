//go:build mage

package main

import (
	"os"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline targets run the freshly built binary. Extra arguments come from
// the ARGS environment variable, split on spaces.
type Pipeline mg.Namespace

func runBinary(args ...string) error {
	mg.Deps(Build)
	if extra := os.Getenv("ARGS"); extra != "" {
		args = append(args, strings.Fields(extra)...)
	}
	return sh.RunV(binPath(), args...)
}

// Harvest lists the identifiers of the configured set.
func (Pipeline) Harvest() error { return runBinary("harvest") }

// Run harvests, resolves and downloads the configured set.
func (Pipeline) Run() error { return runBinary("run") }

// Convert turns downloaded PDFs into text.
func (Pipeline) Convert() error { return runBinary("convert") }

// Extract cuts the background section out of converted text.
func (Pipeline) Extract() error { return runBinary("extract") }

// Status prints the ledger summary with the ten latest failures.
func (Pipeline) Status() error { return runBinary("status", "--failures", "10") }
